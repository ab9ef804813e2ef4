package staking

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// OwnerChecker resolves the on-chain owner of an ERC-721 token.
type OwnerChecker interface {
	OwnerOf(ctx context.Context, contract common.Address, tokenID *big.Int) (common.Address, error)
}

// Rewards summarizes a member's staking state.
type Rewards struct {
	Wallet       string
	Positions    []PositionView
	Pending      decimal.Decimal
	Balance      decimal.Decimal
	TotalClaimed decimal.Decimal
}

// Claimable is what a claim would pay right now.
func (r *Rewards) Claimable() decimal.Decimal {
	return r.Pending.Add(r.Balance)
}

// Service implements the staking commands on top of a Store.
type Service struct {
	store  Store
	owners map[chain.ID]OwnerChecker
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a staking service. owners verifies token ownership per
// chain; staking on a chain without a checker fails.
func NewService(store Store, owners map[chain.ID]OwnerChecker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, owners: owners, logger: logger, now: time.Now}
}

// CreateProject registers a reward project for a contract.
func (s *Service) CreateProject(ctx context.Context, guildID, name, contract, chainName, rewardPerDay, symbol string) (*Project, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return nil, err
	}
	id, ok := chain.Parse(chainName)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported chain %q", ErrInvalidInput, chainName)
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(rewardPerDay))
	if err != nil || !rate.IsPositive() {
		return nil, fmt.Errorf("%w: reward per day must be a positive number", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if name == "" || symbol == "" {
		return nil, fmt.Errorf("%w: name and symbol are required", ErrInvalidInput)
	}

	p := &Project{
		GuildID:      guildID,
		Contract:     addr,
		Chain:        id,
		Name:         name,
		RewardPerDay: rate,
		TokenSymbol:  symbol,
	}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Staking project created",
		zap.String("guild_id", guildID),
		zap.String("contract", addr),
		zap.String("chain", string(id)))
	return p, nil
}

// LinkWallet binds a wallet to the member and returns its normalized form.
func (s *Service) LinkWallet(ctx context.Context, guildID, userID, wallet string) (string, error) {
	addr, err := parseAddress(wallet)
	if err != nil {
		return "", err
	}
	if err := s.store.LinkWallet(ctx, guildID, userID, addr); err != nil {
		return "", err
	}
	return addr, nil
}

// Stake starts accruing rewards for a token the member's wallet owns.
func (s *Service) Stake(ctx context.Context, guildID, userID, contract, tokenID string) (*Project, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return nil, err
	}
	token, err := parseTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.store.GetWallet(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, guildID, addr)
	if err != nil {
		return nil, err
	}

	checker, ok := s.owners[project.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainUnavailable, project.Chain)
	}
	owner, err := checker.OwnerOf(ctx, common.HexToAddress(addr), token)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ownership: %w", err)
	}
	if !strings.EqualFold(owner.Hex(), wallet) {
		return nil, ErrNotOwner
	}

	now := s.now().UTC()
	err = s.store.AddPosition(ctx, &Position{
		Wallet:        wallet,
		Contract:      addr,
		TokenID:       token.String(),
		GuildID:       guildID,
		UserID:        userID,
		ProjectID:     project.ID,
		StakedAt:      now,
		LastClaimedAt: now,
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// Unstake removes a position and returns the rewards settled into the ledger.
func (s *Service) Unstake(ctx context.Context, guildID, userID, contract, tokenID string) (decimal.Decimal, error) {
	addr, err := parseAddress(contract)
	if err != nil {
		return decimal.Zero, err
	}
	token, err := parseTokenID(tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	wallet, err := s.store.GetWallet(ctx, guildID, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return s.store.RemovePosition(ctx, wallet, addr, token.String(), s.now().UTC())
}

// Rewards returns the member's positions and reward totals.
func (s *Service) Rewards(ctx context.Context, guildID, userID string) (*Rewards, error) {
	wallet, err := s.store.GetWallet(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	positions, err := s.store.ListPositions(ctx, guildID, wallet)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.GetLedger(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &Rewards{
		Wallet:       wallet,
		Positions:    positions,
		Pending:      Pending(positions, s.now().UTC()),
		Balance:      ledger.Balance,
		TotalClaimed: ledger.TotalClaimed,
	}, nil
}

// Claim pays out everything claimable for the member.
func (s *Service) Claim(ctx context.Context, guildID, userID string) (decimal.Decimal, error) {
	wallet, err := s.store.GetWallet(ctx, guildID, userID)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := s.store.Claim(ctx, guildID, wallet, s.now().UTC())
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Info("Rewards claimed",
		zap.String("guild_id", guildID),
		zap.String("wallet", wallet),
		zap.String("amount", amount.String()))
	return amount, nil
}

func parseAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("%w: %q is not an address", ErrInvalidInput, raw)
	}
	return strings.ToLower(common.HexToAddress(raw).Hex()), nil
}

func parseTokenID(raw string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q is not a token id", ErrInvalidInput, raw)
	}
	return id, nil
}
