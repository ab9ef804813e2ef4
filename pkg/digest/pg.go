package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
)

type pgStore struct {
	db     *bun.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a new postgres implementation of the digest store
func NewStore(db *bun.DB, logger *zap.Logger) *pgStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pgStore{db: db, logger: logger, now: time.Now}
}

func (s *pgStore) Record(ctx context.Context, in RecordInput) (bool, error) {
	evt, ok := Normalize(in, s.now().UTC())
	if !ok {
		s.logger.Debug("Rejected digest event",
			zap.String("guild_id", in.GuildID),
			zap.String("kind", in.Kind),
			zap.String("tx_hash", in.TxHash))
		metrics.DigestEventsRecorded.WithLabelValues("rejected").Inc()
		return false, nil
	}

	res, err := s.db.NewInsert().
		Model(toEventDao(&evt)).
		On("CONFLICT DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		metrics.DigestEventsRecorded.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to record digest event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n != 1 {
		metrics.DigestEventsRecorded.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	metrics.DigestEventsRecorded.WithLabelValues("inserted").Inc()
	return true, nil
}

func (s *pgStore) ListSince(ctx context.Context, guildID string, since time.Time) ([]Event, error) {
	var daos []EventDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("guild_id = ?", guildID).
		Where("ts >= ?", since.UTC()).
		OrderExpr("ts DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest events: %w", err)
	}

	events := make([]Event, len(daos))
	for i := range daos {
		events[i] = toEvent(&daos[i])
	}
	return events, nil
}

func (s *pgStore) GetSettings(ctx context.Context, guildID string) (*Settings, error) {
	dao := new(SettingsDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get digest settings: %w", err)
	}
	settings := toSettings(dao)
	return &settings, nil
}

func (s *pgStore) UpsertSettings(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	_, err := s.db.NewInsert().
		Model(toSettingsDao(settings)).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("channel_id = EXCLUDED.channel_id").
		Set("enabled = EXCLUDED.enabled").
		Set("timezone = EXCLUDED.timezone").
		Set("hour = EXCLUDED.hour").
		Set("minute = EXCLUDED.minute").
		Set("include_mints = EXCLUDED.include_mints").
		Set("include_sales = EXCLUDED.include_sales").
		Set("include_top_sale = EXCLUDED.include_top_sale").
		Set("include_chains = EXCLUDED.include_chains").
		Set("include_recent = EXCLUDED.include_recent").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert digest settings: %w", err)
	}
	return nil
}

func (s *pgStore) DisableSettings(ctx context.Context, guildID string) error {
	res, err := s.db.NewUpdate().
		Model((*SettingsDao)(nil)).
		Set("enabled = ?", false).
		Set("updated_at = ?", s.now().UTC()).
		Where("guild_id = ?", guildID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to disable digest settings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrSettingsNotFound
	}
	return nil
}

func (s *pgStore) ListEnabledSettings(ctx context.Context) ([]Settings, error) {
	var daos []SettingsDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("enabled = ?", true).
		OrderExpr("guild_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list digest settings: %w", err)
	}

	out := make([]Settings, len(daos))
	for i := range daos {
		out[i] = toSettings(&daos[i])
	}
	return out, nil
}
