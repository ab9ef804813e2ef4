package digest

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSettingsNotFound = errors.New("digest settings not found")
	ErrInvalidSettings  = errors.New("invalid digest settings")
)

// EventStore is the append-only log of digest facts.
type EventStore interface {
	// Record normalizes and inserts in. inserted is false when the fact was
	// already recorded or could not be classified.
	Record(ctx context.Context, in RecordInput) (inserted bool, err error)
	// ListSince returns the community's events newer than since, newest first.
	ListSince(ctx context.Context, guildID string, since time.Time) ([]Event, error)
}

// SettingsStore persists per-community digest configuration.
type SettingsStore interface {
	GetSettings(ctx context.Context, guildID string) (*Settings, error)
	UpsertSettings(ctx context.Context, s *Settings) error
	DisableSettings(ctx context.Context, guildID string) error
	ListEnabledSettings(ctx context.Context) ([]Settings, error)
}

// Store combines both stores, as implemented by the Postgres store.
type Store interface {
	EventStore
	SettingsStore
}
