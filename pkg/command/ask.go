package command

import (
	"context"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
)

// Assistant answers chat prompts; *assistant.Client implements it.
type Assistant interface {
	Reply(ctx context.Context, guildName, prompt string) string
}

// NewAsk creates the /ask handler.
func NewAsk(a Assistant) Handler {
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		prompt := req.String("prompt")
		if prompt == "" {
			return nil, apperrors.BadRequestError(nil, "Ask me something.")
		}
		return Reply(a.Reply(ctx, req.GuildName, prompt)), nil
	})
}
