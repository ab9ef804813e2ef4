package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chainsafe/mintwatch/pkg/app"
	"github.com/chainsafe/mintwatch/pkg/app/bot"
	"github.com/chainsafe/mintwatch/pkg/auth"
	"github.com/chainsafe/mintwatch/pkg/command"
	"github.com/chainsafe/mintwatch/pkg/config"
	"github.com/chainsafe/mintwatch/pkg/discord"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mintwatch",
		Short:         "Discord bot for NFT communities",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			// a missing .env is fine, the environment may already be set
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the bot, the chain watchers and the ops API",
			RunE: func(*cobra.Command, []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				var runner app.Runner = bot.NewServer(cfg)
				return runner.Run()
			},
		},
		&cobra.Command{
			Use:   "sync-commands",
			Short: "Register slash commands globally or to discord.dev_guild_id",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				return syncCommands(cmd.Context(), cfg)
			},
		},
		newTokenCmd(load),
	)
	return root
}

func syncCommands(ctx context.Context, cfg *config.Config) error {
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// the router is never dispatched to, only the client's REST side is used
	b, err := discord.New(cfg.Discord, command.NewRouter(logger), logger)
	if err != nil {
		return err
	}
	defer b.Close(ctx)

	return discord.SyncCommands(b.Registrar(), b.ApplicationID(), cfg.Discord.DevGuildID, logger)
}

func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the ops API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			token, err := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer).Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
