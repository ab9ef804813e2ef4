// Package tier gates premium features per community.
package tier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Tier is a community's subscription level.
type Tier string

const (
	Free        Tier = "free"
	Premium     Tier = "premium"
	PremiumPlus Tier = "premiumplus"
)

var (
	ErrTierNotFound = errors.New("guild tier not found")
	ErrUnknownTier  = errors.New("unknown tier")
	// ErrInsufficientTier is returned by Gate.Require.
	ErrInsufficientTier = errors.New("insufficient tier")
)

func (t Tier) rank() int {
	switch t {
	case Premium:
		return 1
	case PremiumPlus:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether t unlocks everything min does.
func (t Tier) AtLeast(min Tier) bool { return t.rank() >= min.rank() }

// Parse accepts "premium+", "premium_plus" and case variants.
func Parse(raw string) (Tier, error) {
	switch strings.NewReplacer("+", "plus", "_", "", "-", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(raw))) {
	case "free":
		return Free, nil
	case "premium":
		return Premium, nil
	case "premiumplus":
		return PremiumPlus, nil
	}
	return Free, fmt.Errorf("%w: %q", ErrUnknownTier, raw)
}

// GuildTier is a community's stored tier.
type GuildTier struct {
	GuildID   string
	Tier      Tier
	ExpiresAt *time.Time
	UpdatedAt time.Time
}

// Effective returns Free once the tier has expired.
func (g *GuildTier) Effective(now time.Time) Tier {
	if g == nil {
		return Free
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return Free
	}
	return g.Tier
}

// Store persists guild tiers.
type Store interface {
	GetTier(ctx context.Context, guildID string) (*GuildTier, error)
	SetTier(ctx context.Context, g *GuildTier) error
}

// GuildTierDao maps to the 'guild_tiers' table.
type GuildTierDao struct {
	bun.BaseModel `bun:"table:guild_tiers,alias:gt"`
	GuildID       string     `bun:"guild_id,pk,type:varchar(64)"`
	Tier          string     `bun:"tier,notnull,type:varchar(16),default:'free'"`
	ExpiresAt     *time.Time `bun:"expires_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the tier store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetTier(ctx context.Context, guildID string) (*GuildTier, error) {
	dao := &GuildTierDao{GuildID: guildID}
	if err := s.db.NewSelect().Model(dao).WherePK().Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to get guild tier: %w", err)
	}
	return &GuildTier{
		GuildID:   dao.GuildID,
		Tier:      Tier(dao.Tier),
		ExpiresAt: dao.ExpiresAt,
		UpdatedAt: dao.UpdatedAt,
	}, nil
}

func (s *pgStore) SetTier(ctx context.Context, g *GuildTier) error {
	_, err := s.db.NewInsert().
		Model(&GuildTierDao{
			GuildID:   g.GuildID,
			Tier:      string(g.Tier),
			ExpiresAt: g.ExpiresAt,
			UpdatedAt: g.UpdatedAt,
		}).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("tier = EXCLUDED.tier").
		Set("expires_at = EXCLUDED.expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set guild tier: %w", err)
	}
	return nil
}
