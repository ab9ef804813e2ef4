// Package tracker watches tracked contracts on every configured chain and
// turns decoded events into digest facts and channel alerts.
package tracker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

var (
	ErrContractNotFound = errors.New("contract not tracked")
	ErrContractExists   = errors.New("contract already tracked")
)

// Contract is a tracked collection or token contract owned by one community.
type Contract struct {
	Address    string
	Name       string
	Chain      chain.ID
	GuildID    string
	ChannelIDs []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ContractStore persists tracked contracts. Rows are never deleted.
type ContractStore interface {
	AddContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, address string) (*Contract, error)
	Subscribe(ctx context.Context, address, channelID string) error
	Unsubscribe(ctx context.Context, address, channelID string) error
	ListByGuild(ctx context.Context, guildID string) ([]Contract, error)
	ListByChain(ctx context.Context, id chain.ID) ([]Contract, error)
}

// ContractDao maps to the 'tracked_contracts' table.
type ContractDao struct {
	bun.BaseModel `bun:"table:tracked_contracts,alias:tc"`
	Address       string    `bun:"address,pk,type:varchar(64)"`
	Name          string    `bun:"name,notnull,type:varchar(100)"`
	Chain         string    `bun:"chain,notnull,type:varchar(16)"`
	GuildID       string    `bun:"guild_id,notnull,type:varchar(64)"`
	ChannelIDs    []string  `bun:"channel_ids,array,notnull,default:'{}'"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// NormalizeAddress trims and lowercases a contract address.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func toContractDao(c *Contract) *ContractDao {
	channels := dedupeChannels(c.ChannelIDs)
	return &ContractDao{
		Address:    NormalizeAddress(c.Address),
		Name:       strings.TrimSpace(c.Name),
		Chain:      string(c.Chain),
		GuildID:    c.GuildID,
		ChannelIDs: channels,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toContract(dao *ContractDao) Contract {
	return Contract{
		Address:    dao.Address,
		Name:       dao.Name,
		Chain:      chain.ID(dao.Chain),
		GuildID:    dao.GuildID,
		ChannelIDs: dao.ChannelIDs,
		CreatedAt:  dao.CreatedAt,
		UpdatedAt:  dao.UpdatedAt,
	}
}

func dedupeChannels(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
