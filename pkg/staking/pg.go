package staking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/mintwatch/pkg/pgutil"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the staking store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateProject(ctx context.Context, p *Project) error {
	dao := toProjectDao(p)
	dao.CreatedAt = time.Now().UTC()

	_, err := s.db.NewInsert().
		Model(dao).
		Returning("id").
		Exec(ctx)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return ErrProjectExists
		}
		return fmt.Errorf("failed to create staking project: %w", err)
	}
	p.ID = dao.ID
	p.CreatedAt = dao.CreatedAt
	return nil
}

func (s *pgStore) GetProject(ctx context.Context, guildID, contract string) (*Project, error) {
	dao := new(ProjectDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("guild_id = ?", guildID).
		Where("contract = ?", contract).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get staking project: %w", err)
	}
	p := toProject(dao)
	return &p, nil
}

func (s *pgStore) ListProjects(ctx context.Context, guildID string) ([]Project, error) {
	var daos []ProjectDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("guild_id = ?", guildID).
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staking projects: %w", err)
	}
	out := make([]Project, len(daos))
	for i := range daos {
		out[i] = toProject(&daos[i])
	}
	return out, nil
}

func (s *pgStore) LinkWallet(ctx context.Context, guildID, userID, wallet string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := tx.NewSelect().
			Model((*WalletDao)(nil)).
			Where("guild_id = ?", guildID).
			Where("wallet = ?", wallet).
			Where("user_id <> ?", userID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check linked wallet: %w", err)
		}
		if taken {
			return ErrWalletTaken
		}

		_, err = tx.NewInsert().
			Model(&WalletDao{GuildID: guildID, UserID: userID, Wallet: wallet}).
			On("CONFLICT (guild_id, user_id) DO UPDATE").
			Set("wallet = EXCLUDED.wallet").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to link wallet: %w", err)
		}
		return nil
	})
}

func (s *pgStore) GetWallet(ctx context.Context, guildID, userID string) (string, error) {
	dao := new(WalletDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrWalletNotLinked
		}
		return "", fmt.Errorf("failed to get linked wallet: %w", err)
	}
	return dao.Wallet, nil
}

func (s *pgStore) AddPosition(ctx context.Context, p *Position) error {
	_, err := s.db.NewInsert().Model(toPositionDao(p)).Exec(ctx)
	if err != nil {
		if pgutil.IsUniqueViolation(err) {
			return ErrAlreadyStaked
		}
		return fmt.Errorf("failed to add staked position: %w", err)
	}
	return nil
}

func (s *pgStore) RemovePosition(ctx context.Context, wallet, contract, tokenID string, now time.Time) (decimal.Decimal, error) {
	var settled decimal.Decimal
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []positionRow
		err := positionsQuery(tx, &rows).
			Where("spos.wallet = ?", wallet).
			Where("spos.contract = ?", contract).
			Where("spos.token_id = ?", tokenID).
			For("UPDATE OF spos").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to load staked position: %w", err)
		}
		if len(rows) == 0 {
			return ErrPositionNotFound
		}
		settled = Accrued(rows[0].RewardPerDay, rows[0].LastClaimedAt, now)

		if _, err = tx.NewDelete().
			Model(&rows[0].PositionDao).
			WherePK().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to remove staked position: %w", err)
		}

		ledger, err := lockLedger(ctx, tx, wallet)
		if err != nil {
			return err
		}
		ledger.Balance = ledger.Balance.Add(settled)
		return saveLedger(ctx, tx, ledger, now)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return settled, nil
}

func (s *pgStore) ListPositions(ctx context.Context, guildID, wallet string) ([]PositionView, error) {
	var rows []positionRow
	err := positionsQuery(s.db, &rows).
		Where("spos.guild_id = ?", guildID).
		Where("spos.wallet = ?", wallet).
		OrderExpr("spos.staked_at ASC, spos.contract ASC, spos.token_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list staked positions: %w", err)
	}
	return toViews(rows), nil
}

func (s *pgStore) GetLedger(ctx context.Context, wallet string) (*Ledger, error) {
	dao := &LedgerDao{Wallet: wallet}
	err := s.db.NewSelect().Model(dao).WherePK().Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get reward ledger: %w", err)
	}
	return &Ledger{
		Wallet:       wallet,
		Balance:      dao.Balance,
		TotalClaimed: dao.TotalClaimed,
		UpdatedAt:    dao.UpdatedAt,
	}, nil
}

func (s *pgStore) Claim(ctx context.Context, guildID, wallet string, now time.Time) (decimal.Decimal, error) {
	var claimed decimal.Decimal
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var rows []positionRow
		err := positionsQuery(tx, &rows).
			Where("spos.guild_id = ?", guildID).
			Where("spos.wallet = ?", wallet).
			For("UPDATE OF spos").
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("failed to load staked positions: %w", err)
		}
		pending := Pending(toViews(rows), now)

		if len(rows) > 0 {
			if _, err = tx.NewUpdate().
				Model((*PositionDao)(nil)).
				Set("last_claimed_at = ?", now).
				Where("guild_id = ?", guildID).
				Where("wallet = ?", wallet).
				Exec(ctx); err != nil {
				return fmt.Errorf("failed to reset claim time: %w", err)
			}
		}

		ledger, err := lockLedger(ctx, tx, wallet)
		if err != nil {
			return err
		}
		claimed = ledger.Balance.Add(pending)
		ledger.Balance = decimal.Zero
		ledger.TotalClaimed = ledger.TotalClaimed.Add(claimed)
		return saveLedger(ctx, tx, ledger, now)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return claimed, nil
}

func positionsQuery(db bun.IDB, rows *[]positionRow) *bun.SelectQuery {
	return db.NewSelect().
		Model(rows).
		ColumnExpr("spos.*").
		ColumnExpr("sp.reward_per_day, sp.token_symbol").
		Join("JOIN staking_projects AS sp ON sp.id = spos.project_id")
}

// lockLedger returns the wallet's ledger row locked for update, or a zero
// ledger when none exists yet.
func lockLedger(ctx context.Context, tx bun.Tx, wallet string) (*LedgerDao, error) {
	dao := &LedgerDao{Wallet: wallet}
	err := tx.NewSelect().Model(dao).WherePK().For("UPDATE").Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to lock reward ledger: %w", err)
	}
	return dao, nil
}

func saveLedger(ctx context.Context, tx bun.Tx, dao *LedgerDao, now time.Time) error {
	dao.UpdatedAt = now
	_, err := tx.NewInsert().
		Model(dao).
		On("CONFLICT (wallet) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("total_claimed = EXCLUDED.total_claimed").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save reward ledger: %w", err)
	}
	return nil
}

func toViews(rows []positionRow) []PositionView {
	out := make([]PositionView, len(rows))
	for i := range rows {
		out[i] = PositionView{
			Position:     toPosition(&rows[i].PositionDao),
			RewardPerDay: rows[i].RewardPerDay,
			TokenSymbol:  rows[i].TokenSymbol,
		}
	}
	return out
}
