// Package staking keeps off-chain reward bookkeeping for NFTs that community
// members stake against a project.
package staking

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

var (
	ErrProjectNotFound  = errors.New("staking project not found")
	ErrProjectExists    = errors.New("staking project already exists")
	ErrWalletNotLinked  = errors.New("wallet not linked")
	ErrWalletTaken      = errors.New("wallet linked to another member")
	ErrAlreadyStaked    = errors.New("token already staked")
	ErrPositionNotFound = errors.New("staked position not found")
	ErrNotOwner         = errors.New("wallet does not own token")
	ErrInvalidInput     = errors.New("invalid staking input")
	ErrChainUnavailable = errors.New("chain not configured")
)

// rewardPrecision is the number of decimal places kept for accrued rewards.
const rewardPrecision = 6

// Project pays RewardPerDay tokens for every staked NFT of Contract.
type Project struct {
	ID           int64
	GuildID      string
	Contract     string
	Chain        chain.ID
	Name         string
	RewardPerDay decimal.Decimal
	TokenSymbol  string
	CreatedAt    time.Time
}

// Position is one staked token.
type Position struct {
	Wallet        string
	Contract      string
	TokenID       string
	GuildID       string
	UserID        string
	ProjectID     int64
	StakedAt      time.Time
	LastClaimedAt time.Time
}

// PositionView is a position joined with the project paying for it.
type PositionView struct {
	Position
	RewardPerDay decimal.Decimal
	TokenSymbol  string
}

// Ledger holds a wallet's settled rewards.
type Ledger struct {
	Wallet       string
	Balance      decimal.Decimal
	TotalClaimed decimal.Decimal
	UpdatedAt    time.Time
}

// Store persists projects, positions, linked wallets and the reward ledger.
type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	// GetProject returns the guild's oldest project for contract.
	GetProject(ctx context.Context, guildID, contract string) (*Project, error)
	ListProjects(ctx context.Context, guildID string) ([]Project, error)

	LinkWallet(ctx context.Context, guildID, userID, wallet string) error
	GetWallet(ctx context.Context, guildID, userID string) (string, error)

	AddPosition(ctx context.Context, p *Position) error
	// RemovePosition deletes the position and settles its pending rewards
	// into the wallet's balance. It returns the settled amount.
	RemovePosition(ctx context.Context, wallet, contract, tokenID string, now time.Time) (decimal.Decimal, error)
	ListPositions(ctx context.Context, guildID, wallet string) ([]PositionView, error)

	GetLedger(ctx context.Context, wallet string) (*Ledger, error)
	// Claim settles every pending reward of wallet's positions in guildID,
	// empties the balance and returns the claimed amount.
	Claim(ctx context.Context, guildID, wallet string, now time.Time) (decimal.Decimal, error)
}

// Accrued returns the reward earned at ratePerDay between from and to.
func Accrued(ratePerDay decimal.Decimal, from, to time.Time) decimal.Decimal {
	if !to.After(from) || !ratePerDay.IsPositive() {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(to.Sub(from) / time.Second)).Div(decimal.NewFromInt(86400))
	return ratePerDay.Mul(days).Truncate(rewardPrecision)
}

// Pending sums the unclaimed rewards of positions at now.
func Pending(positions []PositionView, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(Accrued(p.RewardPerDay, p.LastClaimedAt, now))
	}
	return total
}
