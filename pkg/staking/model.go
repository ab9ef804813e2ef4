package staking

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// ProjectUniqueIndex keeps one project per (guild, contract, chain).
const ProjectUniqueIndex = "idx_staking_projects_guild_contract_chain"

// ProjectDao maps to the 'staking_projects' table.
type ProjectDao struct {
	bun.BaseModel `bun:"table:staking_projects,alias:sp"`
	ID            int64           `bun:"id,pk,autoincrement"`
	GuildID       string          `bun:"guild_id,notnull,type:varchar(64)"`
	Contract      string          `bun:"contract,notnull,type:varchar(64)"`
	Chain         string          `bun:"chain,notnull,type:varchar(16)"`
	Name          string          `bun:"name,notnull,type:varchar(100)"`
	RewardPerDay  decimal.Decimal `bun:"reward_per_day,notnull,type:numeric(38,18)"`
	TokenSymbol   string          `bun:"token_symbol,notnull,type:varchar(16)"`
	CreatedAt     time.Time       `bun:"created_at,notnull,default:current_timestamp"`
}

// PositionDao maps to the 'staked_positions' table.
type PositionDao struct {
	bun.BaseModel `bun:"table:staked_positions,alias:spos"`
	Wallet        string    `bun:"wallet,pk,type:varchar(64)"`
	Contract      string    `bun:"contract,pk,type:varchar(64)"`
	TokenID       string    `bun:"token_id,pk,type:varchar(80)"`
	GuildID       string    `bun:"guild_id,notnull,type:varchar(64)"`
	UserID        string    `bun:"user_id,notnull,type:varchar(64)"`
	ProjectID     int64     `bun:"project_id,notnull"`
	StakedAt      time.Time `bun:"staked_at,notnull,default:current_timestamp"`
	LastClaimedAt time.Time `bun:"last_claimed_at,notnull,default:current_timestamp"`
}

// LedgerDao maps to the 'reward_ledger' table.
type LedgerDao struct {
	bun.BaseModel `bun:"table:reward_ledger,alias:rl"`
	Wallet        string          `bun:"wallet,pk,type:varchar(64)"`
	Balance       decimal.Decimal `bun:"balance,notnull,type:numeric(38,18),default:0"`
	TotalClaimed  decimal.Decimal `bun:"total_claimed,notnull,type:numeric(38,18),default:0"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull,default:current_timestamp"`
}

// WalletDao maps to the 'linked_wallets' table.
type WalletDao struct {
	bun.BaseModel `bun:"table:linked_wallets,alias:lw"`
	GuildID       string `bun:"guild_id,pk,type:varchar(64)"`
	UserID        string `bun:"user_id,pk,type:varchar(64)"`
	Wallet        string `bun:"wallet,notnull,type:varchar(64)"`
}

// positionRow is a position joined with its project.
type positionRow struct {
	PositionDao  `bun:",extend"`
	RewardPerDay decimal.Decimal `bun:"reward_per_day"`
	TokenSymbol  string          `bun:"token_symbol"`
}

func toProjectDao(p *Project) *ProjectDao {
	return &ProjectDao{
		ID:           p.ID,
		GuildID:      p.GuildID,
		Contract:     p.Contract,
		Chain:        string(p.Chain),
		Name:         p.Name,
		RewardPerDay: p.RewardPerDay,
		TokenSymbol:  p.TokenSymbol,
		CreatedAt:    p.CreatedAt,
	}
}

func toProject(dao *ProjectDao) Project {
	return Project{
		ID:           dao.ID,
		GuildID:      dao.GuildID,
		Contract:     dao.Contract,
		Chain:        chain.ID(dao.Chain),
		Name:         dao.Name,
		RewardPerDay: dao.RewardPerDay,
		TokenSymbol:  dao.TokenSymbol,
		CreatedAt:    dao.CreatedAt,
	}
}

func toPositionDao(p *Position) *PositionDao {
	return &PositionDao{
		Wallet:        p.Wallet,
		Contract:      p.Contract,
		TokenID:       p.TokenID,
		GuildID:       p.GuildID,
		UserID:        p.UserID,
		ProjectID:     p.ProjectID,
		StakedAt:      p.StakedAt,
		LastClaimedAt: p.LastClaimedAt,
	}
}

func toPosition(dao *PositionDao) Position {
	return Position{
		Wallet:        dao.Wallet,
		Contract:      dao.Contract,
		TokenID:       dao.TokenID,
		GuildID:       dao.GuildID,
		UserID:        dao.UserID,
		ProjectID:     dao.ProjectID,
		StakedAt:      dao.StakedAt,
		LastClaimedAt: dao.LastClaimedAt,
	}
}
