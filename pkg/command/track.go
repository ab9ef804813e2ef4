package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	apperrors "github.com/chainsafe/mintwatch/pkg/app/errors"
	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/tracker"
)

// Track manages the guild's tracked contracts.
type Track struct {
	store  tracker.ContractStore
	chains map[chain.ID]bool
}

// NewTrack creates the /track handler. Only contracts on configured chains
// can be tracked.
func NewTrack(store tracker.ContractStore, chains []chain.ID) *Track {
	set := make(map[chain.ID]bool, len(chains))
	for _, id := range chains {
		set[id] = true
	}
	return &Track{store: store, chains: set}
}

func (t *Track) Handle(ctx context.Context, req *Request) (*Response, error) {
	if err := requireGuild(req); err != nil {
		return nil, err
	}
	switch req.Subcommand {
	case "add":
		return t.add(ctx, req)
	case "subscribe":
		return t.subscribe(ctx, req, true)
	case "unsubscribe":
		return t.subscribe(ctx, req, false)
	case "list":
		return t.list(ctx, req)
	default:
		return nil, unknownSubcommand(req)
	}
}

func (t *Track) add(ctx context.Context, req *Request) (*Response, error) {
	if err := requireManager(req); err != nil {
		return nil, err
	}
	addr, err := contractAddress(req.String("address"))
	if err != nil {
		return nil, err
	}
	id, ok := chain.Parse(req.String("chain"))
	if !ok || !t.chains[id] {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("Chain %q is not enabled on this bot.", req.String("chain")))
	}
	name := req.String("name")
	if name == "" || len(name) > 100 {
		return nil, apperrors.BadRequestError(nil, "Name must be 1 to 100 characters.")
	}
	channel := req.String("channel")
	if channel == "" {
		channel = req.ChannelID
	}

	err = t.store.AddContract(ctx, &tracker.Contract{
		Address:    addr,
		Name:       name,
		Chain:      id,
		GuildID:    req.GuildID,
		ChannelIDs: []string{channel},
	})
	if errors.Is(err, tracker.ErrContractExists) {
		return nil, apperrors.ConflictError(err, "That contract is already tracked.")
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	return Reply(fmt.Sprintf("Tracking **%s** on %s. Alerts go to <#%s>.", name, id.DisplayName(), channel)), nil
}

func (t *Track) subscribe(ctx context.Context, req *Request, on bool) (*Response, error) {
	if err := requireManager(req); err != nil {
		return nil, err
	}
	addr, err := contractAddress(req.String("address"))
	if err != nil {
		return nil, err
	}
	channel := req.String("channel")
	if channel == "" {
		return nil, apperrors.BadRequestError(nil, "Pick a channel.")
	}

	c, err := t.store.GetContract(ctx, addr)
	if errors.Is(err, tracker.ErrContractNotFound) {
		return nil, apperrors.ResourceNotFoundError(err, "That contract is not tracked.")
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	// another guild's contract looks untracked from here
	if c.GuildID != req.GuildID {
		return nil, apperrors.ResourceNotFoundError(nil, "That contract is not tracked.")
	}

	if on {
		err = t.store.Subscribe(ctx, addr, channel)
	} else {
		err = t.store.Unsubscribe(ctx, addr, channel)
	}
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if on {
		return Reply(fmt.Sprintf("<#%s> now receives **%s** alerts.", channel, c.Name)), nil
	}
	return Reply(fmt.Sprintf("<#%s> no longer receives **%s** alerts.", channel, c.Name)), nil
}

func (t *Track) list(ctx context.Context, req *Request) (*Response, error) {
	contracts, err := t.store.ListByGuild(ctx, req.GuildID)
	if err != nil {
		return nil, apperrors.GeneralError(err)
	}
	if len(contracts) == 0 {
		return Private("Nothing tracked yet. Use `/track add`."), nil
	}

	var b strings.Builder
	for _, c := range contracts {
		channels := "no channels"
		if len(c.ChannelIDs) > 0 {
			mentions := make([]string, len(c.ChannelIDs))
			for i, id := range c.ChannelIDs {
				mentions[i] = "<#" + id + ">"
			}
			channels = strings.Join(mentions, " ")
		}
		fmt.Fprintf(&b, "**%s** `%s` on %s: %s\n", c.Name, c.Address, c.Chain.DisplayName(), channels)
	}
	return Private(b.String()), nil
}

func contractAddress(raw string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", apperrors.BadRequestError(nil, "That is not a valid contract address.")
	}
	return tracker.NormalizeAddress(common.HexToAddress(raw).Hex()), nil
}
