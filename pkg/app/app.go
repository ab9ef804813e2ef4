// Package app holds the contracts cmd/ entrypoints use to start the bot.
package app

// Runner is a long-lived process component started by a cobra command.
type Runner interface {
	Run() error
}
