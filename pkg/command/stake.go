package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/notify"
	"github.com/chainsafe/mintwatch/pkg/staking"
)

const maxListedPositions = 10

// StakingService is implemented by *staking.Service.
type StakingService interface {
	CreateProject(ctx context.Context, guildID, name, contract, chainName, rewardPerDay, symbol string) (*staking.Project, error)
	LinkWallet(ctx context.Context, guildID, userID, wallet string) (string, error)
	Stake(ctx context.Context, guildID, userID, contract, tokenID string) (*staking.Project, error)
	Unstake(ctx context.Context, guildID, userID, contract, tokenID string) (decimal.Decimal, error)
	Rewards(ctx context.Context, guildID, userID string) (*staking.Rewards, error)
	Claim(ctx context.Context, guildID, userID string) (decimal.Decimal, error)
}

// Stake runs the staking commands.
type Stake struct {
	svc StakingService
}

// NewStake creates the /stake handler.
func NewStake(svc StakingService) *Stake {
	return &Stake{svc: svc}
}

func (s *Stake) Handle(ctx context.Context, req *Request) (*Response, error) {
	if err := requireGuild(req); err != nil {
		return nil, err
	}
	switch req.Subcommand {
	case "project":
		if err := requireManager(req); err != nil {
			return nil, err
		}
		p, err := s.svc.CreateProject(ctx, req.GuildID, req.String("name"), req.String("address"),
			req.String("chain"), req.String("reward_per_day"), req.String("symbol"))
		if err != nil {
			return nil, stakeError(err)
		}
		return Reply(fmt.Sprintf("Staking project **%s** pays %s %s per token per day.",
			p.Name, p.RewardPerDay.String(), p.TokenSymbol)), nil

	case "link":
		wallet, err := s.svc.LinkWallet(ctx, req.GuildID, req.UserID, req.String("wallet"))
		if err != nil {
			return nil, stakeError(err)
		}
		return Private(fmt.Sprintf("Linked `%s`.", wallet)), nil

	case "add":
		p, err := s.svc.Stake(ctx, req.GuildID, req.UserID, req.String("address"), req.String("token_id"))
		if err != nil {
			return nil, stakeError(err)
		}
		return Private(fmt.Sprintf("Token #%s staked in **%s**.", req.String("token_id"), p.Name)), nil

	case "remove":
		settled, err := s.svc.Unstake(ctx, req.GuildID, req.UserID, req.String("address"), req.String("token_id"))
		if err != nil {
			return nil, stakeError(err)
		}
		return Private(fmt.Sprintf("Token #%s unstaked. %s moved to your balance.", req.String("token_id"), settled.String())), nil

	case "rewards":
		r, err := s.svc.Rewards(ctx, req.GuildID, req.UserID)
		if err != nil {
			return nil, stakeError(err)
		}
		return &Response{Embeds: []notify.Embed{rewardsEmbed(r)}, Ephemeral: true}, nil

	case "claim":
		amount, err := s.svc.Claim(ctx, req.GuildID, req.UserID)
		if err != nil {
			return nil, stakeError(err)
		}
		if amount.IsZero() {
			return Private("Nothing to claim yet."), nil
		}
		return Private(fmt.Sprintf("Claimed %s.", amount.String())), nil

	default:
		return nil, unknownSubcommand(req)
	}
}

func rewardsEmbed(r *staking.Rewards) notify.Embed {
	symbol := ""
	var lines strings.Builder
	for i, p := range r.Positions {
		if symbol == "" {
			symbol = p.TokenSymbol
		}
		if i == maxListedPositions {
			fmt.Fprintf(&lines, "…and %d more\n", len(r.Positions)-maxListedPositions)
			break
		}
		fmt.Fprintf(&lines, "`%s` #%s (%s/day)\n", shortAddr(p.Contract), p.TokenID, p.RewardPerDay.String())
	}
	positions := lines.String()
	if positions == "" {
		positions = "None"
	}

	withSymbol := func(d decimal.Decimal) string {
		return strings.TrimSpace(d.String() + " " + symbol)
	}
	return notify.Embed{
		Title: "Staking rewards",
		Color: notify.ColorMint,
		Fields: []notify.Field{
			{Name: "Wallet", Value: "`" + r.Wallet + "`"},
			{Name: "Staked", Value: positions},
			{Name: "Pending", Value: withSymbol(r.Pending), Inline: true},
			{Name: "Balance", Value: withSymbol(r.Balance), Inline: true},
			{Name: "Claimable", Value: withSymbol(r.Claimable()), Inline: true},
			{Name: "Claimed so far", Value: withSymbol(r.TotalClaimed), Inline: true},
		},
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

func stakeError(err error) error {
	switch {
	case errors.Is(err, staking.ErrInvalidInput):
		return apperrors.BadRequestError(err, "Check the address, token id and amounts.")
	case errors.Is(err, staking.ErrWalletNotLinked):
		return apperrors.BadRequestError(err, "Link a wallet first with `/stake link`.")
	case errors.Is(err, staking.ErrWalletTaken):
		return apperrors.ConflictError(err, "That wallet is linked to another member.")
	case errors.Is(err, staking.ErrProjectNotFound):
		return apperrors.ResourceNotFoundError(err, "There is no staking project for that contract.")
	case errors.Is(err, staking.ErrProjectExists):
		return apperrors.ConflictError(err, "A staking project for that contract already exists.")
	case errors.Is(err, staking.ErrAlreadyStaked):
		return apperrors.ConflictError(err, "That token is already staked.")
	case errors.Is(err, staking.ErrPositionNotFound):
		return apperrors.ResourceNotFoundError(err, "That token is not staked by your wallet.")
	case errors.Is(err, staking.ErrNotOwner):
		return apperrors.ForbiddenError(err, "Your linked wallet does not own that token.")
	case errors.Is(err, staking.ErrChainUnavailable):
		return apperrors.BadRequestError(err, "That chain is not enabled on this bot.")
	default:
		return apperrors.GeneralError(err)
	}
}
