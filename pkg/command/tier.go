package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/tier"
)

// TierStore reads and writes guild tiers; *tier.Gate implements it.
type TierStore interface {
	Get(ctx context.Context, guildID string) (*tier.GuildTier, error)
	Set(ctx context.Context, guildID string, t tier.Tier, days int) (*tier.GuildTier, error)
}

// Tier shows and, for bot owners, changes a guild's tier.
type Tier struct {
	tiers  TierStore
	owners map[string]bool
	now    func() time.Time
}

// NewTier creates the /tier handler.
func NewTier(tiers TierStore, ownerIDs []string) *Tier {
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	return &Tier{tiers: tiers, owners: owners, now: time.Now}
}

func (t *Tier) Handle(ctx context.Context, req *Request) (*Response, error) {
	if err := requireGuild(req); err != nil {
		return nil, err
	}
	switch req.Subcommand {
	case "show":
		gt, err := t.tiers.Get(ctx, req.GuildID)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		return Private(describeTier(gt, t.now())), nil

	case "set":
		if !t.owners[req.UserID] {
			return nil, apperrors.ForbiddenError(nil, "Only the bot owner can change tiers.")
		}
		level, err := tier.Parse(req.String("tier"))
		if errors.Is(err, tier.ErrUnknownTier) {
			return nil, apperrors.BadRequestError(err, "Tier must be free, premium or premiumplus.")
		}
		days, _ := req.Int("days")
		if days < 0 {
			return nil, apperrors.BadRequestError(nil, "Days cannot be negative.")
		}
		gt, err := t.tiers.Set(ctx, req.GuildID, level, days)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		return Private(describeTier(gt, t.now())), nil

	default:
		return nil, unknownSubcommand(req)
	}
}

func describeTier(gt *tier.GuildTier, now time.Time) string {
	current := gt.Effective(now)
	switch {
	case gt.ExpiresAt != nil && current == tier.Free && gt.Tier != tier.Free:
		return fmt.Sprintf("This server is on the **free** tier (%s expired <t:%d:R>).", gt.Tier, gt.ExpiresAt.Unix())
	case gt.ExpiresAt != nil:
		return fmt.Sprintf("This server is on the **%s** tier until <t:%d:f>.", current, gt.ExpiresAt.Unix())
	default:
		return fmt.Sprintf("This server is on the **%s** tier.", current)
	}
}
