package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/pgutil"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the contract store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) AddContract(ctx context.Context, c *Contract) error {
	now := time.Now().UTC()
	dao := toContractDao(c)
	dao.CreatedAt = now
	dao.UpdatedAt = now

	_, err := s.db.NewInsert().Model(dao).Exec(ctx)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return ErrContractExists
		}
		return fmt.Errorf("failed to add contract: %w", err)
	}
	return nil
}

func (s *pgStore) GetContract(ctx context.Context, address string) (*Contract, error) {
	dao := new(ContractDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("address = ?", NormalizeAddress(address)).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	c := toContract(dao)
	return &c, nil
}

func (s *pgStore) Subscribe(ctx context.Context, address, channelID string) error {
	res, err := s.db.NewUpdate().
		Model((*ContractDao)(nil)).
		Set("channel_ids = CASE WHEN ? = ANY(channel_ids) THEN channel_ids ELSE array_append(channel_ids, ?) END", channelID, channelID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("address = ?", NormalizeAddress(address)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe channel: %w", err)
	}
	return requireRow(res)
}

func (s *pgStore) Unsubscribe(ctx context.Context, address, channelID string) error {
	res, err := s.db.NewUpdate().
		Model((*ContractDao)(nil)).
		Set("channel_ids = array_remove(channel_ids, ?)", channelID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("address = ?", NormalizeAddress(address)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe channel: %w", err)
	}
	return requireRow(res)
}

func (s *pgStore) ListByGuild(ctx context.Context, guildID string) ([]Contract, error) {
	return s.list(ctx, "guild_id = ?", guildID)
}

func (s *pgStore) ListByChain(ctx context.Context, id chain.ID) ([]Contract, error) {
	return s.list(ctx, "chain = ?", string(id))
}

func (s *pgStore) list(ctx context.Context, where string, arg any) ([]Contract, error) {
	var daos []ContractDao
	err := s.db.NewSelect().
		Model(&daos).
		Where(where, arg).
		OrderExpr("created_at ASC, address ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	out := make([]Contract, len(daos))
	for i := range daos {
		out[i] = toContract(&daos[i])
	}
	return out, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrContractNotFound
	}
	return nil
}
