package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Gate answers tier questions for command handlers.
type Gate struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates a gate backed by store.
func NewGate(store Store, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, logger: logger, now: time.Now}
}

// Get returns the stored tier, or a Free placeholder for unknown guilds.
func (g *Gate) Get(ctx context.Context, guildID string) (*GuildTier, error) {
	gt, err := g.store.GetTier(ctx, guildID)
	if errors.Is(err, ErrTierNotFound) {
		return &GuildTier{GuildID: guildID, Tier: Free}, nil
	}
	if err != nil {
		return nil, err
	}
	return gt, nil
}

// Effective returns the tier currently in force for the guild.
func (g *Gate) Effective(ctx context.Context, guildID string) (Tier, error) {
	gt, err := g.Get(ctx, guildID)
	if err != nil {
		return Free, err
	}
	return gt.Effective(g.now()), nil
}

// Require fails with ErrInsufficientTier unless the guild has at least min.
func (g *Gate) Require(ctx context.Context, guildID string, min Tier) error {
	current, err := g.Effective(ctx, guildID)
	if err != nil {
		return err
	}
	if !current.AtLeast(min) {
		return fmt.Errorf("%w: %s requires %s", ErrInsufficientTier, current, min)
	}
	return nil
}

// Set stores t for the guild. days > 0 sets an expiry that many days out;
// Free never expires.
func (g *Gate) Set(ctx context.Context, guildID string, t Tier, days int) (*GuildTier, error) {
	now := g.now().UTC()
	gt := &GuildTier{GuildID: guildID, Tier: t, UpdatedAt: now}
	if days > 0 && t != Free {
		exp := now.Add(time.Duration(days) * 24 * time.Hour)
		gt.ExpiresAt = &exp
	}
	if err := g.store.SetTier(ctx, gt); err != nil {
		return nil, err
	}
	g.logger.Info("Guild tier updated",
		zap.String("guild_id", guildID),
		zap.String("tier", string(t)),
		zap.Int("days", days))
	return gt, nil
}
