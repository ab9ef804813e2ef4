package digest

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// DedupeIndex makes re-recording the same (guild, kind, tx, token) a no-op.
// A missing token id is keyed as the empty string so it collides too.
const DedupeIndex = "idx_digest_events_dedupe"

// DedupeIndexExprs are the key expressions of DedupeIndex.
var DedupeIndexExprs = []string{"guild_id", "event_type", "tx_hash", "(COALESCE(token_id, ''))"}

// EventDao maps to the 'digest_events' table.
type EventDao struct {
	bun.BaseModel `bun:"table:digest_events,alias:de"`
	ID            int64     `bun:"id,pk,autoincrement"`
	GuildID       string    `bun:"guild_id,notnull,type:varchar(64)"`
	EventType     string    `bun:"event_type,notnull,type:varchar(8)"`
	SubType       *string   `bun:"sub_type,type:varchar(16)"`
	Chain         string    `bun:"chain,notnull,type:varchar(16)"`
	Contract      string    `bun:"contract,notnull,type:varchar(64)"`
	TokenID       *string   `bun:"token_id,type:varchar(80)"`
	AmountNative  *string   `bun:"amount_native,type:numeric(38,18)"`
	AmountETH     *string   `bun:"amount_eth,type:numeric(38,18)"`
	AmountUSD     *string   `bun:"amount_usd,type:numeric(38,18)"`
	Buyer         *string   `bun:"buyer,type:varchar(64)"`
	Seller        *string   `bun:"seller,type:varchar(64)"`
	TxHash        *string   `bun:"tx_hash,type:varchar(80)"`
	Timestamp     time.Time `bun:"ts,notnull,default:current_timestamp"`
}

// SettingsDao maps to the 'digest_settings' table.
type SettingsDao struct {
	bun.BaseModel  `bun:"table:digest_settings,alias:ds"`
	GuildID        string    `bun:"guild_id,pk,type:varchar(64)"`
	ChannelID      string    `bun:"channel_id,notnull,type:varchar(32)"`
	Enabled        bool      `bun:"enabled,notnull,default:true"`
	Timezone       string    `bun:"timezone,notnull,type:varchar(64),default:'UTC'"`
	Hour           int       `bun:"hour,notnull,default:9"`
	Minute         int       `bun:"minute,notnull,default:0"`
	IncludeMints   bool      `bun:"include_mints,notnull,default:true"`
	IncludeSales   bool      `bun:"include_sales,notnull,default:true"`
	IncludeTopSale bool      `bun:"include_top_sale,notnull,default:true"`
	IncludeChains  bool      `bun:"include_chains,notnull,default:true"`
	IncludeRecent  bool      `bun:"include_recent,notnull,default:true"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseDecimal(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func toEventDao(e *Event) *EventDao {
	return &EventDao{
		GuildID:      e.GuildID,
		EventType:    string(e.Kind),
		SubType:      optional(string(e.SubKind)),
		Chain:        string(e.Chain),
		Contract:     e.Contract,
		TokenID:      optional(e.TokenID),
		AmountNative: optionalDecimal(e.AmountNative),
		AmountETH:    optionalDecimal(e.AmountETH),
		AmountUSD:    optionalDecimal(e.AmountUSD),
		Buyer:        optional(e.Buyer),
		Seller:       optional(e.Seller),
		TxHash:       optional(e.TxHash),
		Timestamp:    e.Timestamp,
	}
}

func toEvent(dao *EventDao) Event {
	return Event{
		ID:           dao.ID,
		GuildID:      dao.GuildID,
		Kind:         Kind(dao.EventType),
		SubKind:      SubKind(deref(dao.SubType)),
		Chain:        chain.ID(dao.Chain),
		Contract:     dao.Contract,
		TokenID:      deref(dao.TokenID),
		AmountNative: parseDecimal(dao.AmountNative),
		AmountETH:    parseDecimal(dao.AmountETH),
		AmountUSD:    parseDecimal(dao.AmountUSD),
		Buyer:        deref(dao.Buyer),
		Seller:       deref(dao.Seller),
		TxHash:       deref(dao.TxHash),
		Timestamp:    dao.Timestamp,
	}
}

func toSettingsDao(s *Settings) *SettingsDao {
	return &SettingsDao{
		GuildID:        s.GuildID,
		ChannelID:      s.ChannelID,
		Enabled:        s.Enabled,
		Timezone:       s.Timezone,
		Hour:           s.Hour,
		Minute:         s.Minute,
		IncludeMints:   s.IncludeMints,
		IncludeSales:   s.IncludeSales,
		IncludeTopSale: s.IncludeTopSale,
		IncludeChains:  s.IncludeChains,
		IncludeRecent:  s.IncludeRecent,
		UpdatedAt:      time.Now().UTC(),
	}
}

func toSettings(dao *SettingsDao) Settings {
	return Settings{
		GuildID:        dao.GuildID,
		ChannelID:      dao.ChannelID,
		Enabled:        dao.Enabled,
		Timezone:       dao.Timezone,
		Hour:           dao.Hour,
		Minute:         dao.Minute,
		IncludeMints:   dao.IncludeMints,
		IncludeSales:   dao.IncludeSales,
		IncludeTopSale: dao.IncludeTopSale,
		IncludeChains:  dao.IncludeChains,
		IncludeRecent:  dao.IncludeRecent,
		UpdatedAt:      dao.UpdatedAt,
	}
}
