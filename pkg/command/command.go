// Package command implements the bot's slash commands independently of the
// chat platform. The discord package turns interactions into Requests and
// Responses back into interaction replies.
package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chainsafe/mintwatch/pkg/notify"
)

// Request is one invocation of a slash command.
type Request struct {
	ID          uuid.UUID
	GuildID     string
	GuildName   string
	ChannelID   string
	UserID      string
	UserName    string
	ManageGuild bool

	Command    string
	Subcommand string
	// Options holds string, int64, float64 or bool values keyed by option name.
	Options map[string]any
}

// NewRequest creates a request with a fresh correlation id.
func NewRequest(command, subcommand string) *Request {
	return &Request{
		ID:         uuid.New(),
		Command:    command,
		Subcommand: subcommand,
		Options:    make(map[string]any),
	}
}

// Name is the full command path, e.g. "digest setup".
func (r *Request) Name() string {
	if r.Subcommand == "" {
		return r.Command
	}
	return r.Command + " " + r.Subcommand
}

// String returns the trimmed string option, or "".
func (r *Request) String(name string) string {
	switch v := r.Options[name].(type) {
	case string:
		return strings.TrimSpace(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Int returns an integer option.
func (r *Request) Int(name string) (int, bool) {
	switch v := r.Options[name].(type) {
	case int64:
		return int(v), true
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns a boolean option, or def when absent.
func (r *Request) Bool(name string, def bool) bool {
	if v, ok := r.Options[name].(bool); ok {
		return v
	}
	return def
}

// Response is what the bot replies with.
type Response struct {
	Content   string
	Embeds    []notify.Embed
	Ephemeral bool
}

// Reply is a plain text response.
func Reply(content string) *Response {
	return &Response{Content: content}
}

// Private is a plain text response only the caller sees.
func Private(content string) *Response {
	return &Response{Content: content, Ephemeral: true}
}

// Handler handles one command.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware decorates a Handler.
type Middleware func(Handler) Handler
