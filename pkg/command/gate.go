package command

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/tier"
)

// TierChecker enforces premium tiers.
type TierChecker interface {
	Require(ctx context.Context, guildID string, min tier.Tier) error
}

// Limiter is a per-member cooldown.
type Limiter interface {
	Allow(command, userID string) (bool, time.Duration)
}

// RequireTier rejects requests from guilds below min.
func RequireTier(gate TierChecker, min tier.Tier) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if req.GuildID == "" {
				return nil, apperrors.ForbiddenError(nil, "This command only works inside a server.")
			}
			err := gate.Require(ctx, req.GuildID, min)
			if errors.Is(err, tier.ErrInsufficientTier) {
				return nil, apperrors.ForbiddenError(err, fmt.Sprintf("This command needs the %s tier.", min))
			}
			if err != nil {
				return nil, apperrors.GeneralError(err)
			}
			return next.Handle(ctx, req)
		})
	}
}

// WithCooldown rejects members who call the command too often.
func WithCooldown(limiter Limiter) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			ok, wait := limiter.Allow(req.Command, req.UserID)
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				return nil, apperrors.RateLimitedError(nil, fmt.Sprintf("Slow down, try again in %ds.", secs))
			}
			return next.Handle(ctx, req)
		})
	}
}

func requireManager(req *Request) error {
	if !req.ManageGuild {
		return apperrors.ForbiddenError(nil, "You need the Manage Server permission for that.")
	}
	return nil
}

func requireGuild(req *Request) error {
	if req.GuildID == "" {
		return apperrors.BadRequestError(nil, "This command only works inside a server.")
	}
	return nil
}

func unknownSubcommand(req *Request) error {
	return apperrors.BadRequestError(nil, fmt.Sprintf("Unknown subcommand %q.", req.Subcommand))
}
