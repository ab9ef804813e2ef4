// Package digest records on-chain facts per community and rolls them up into
// periodic summaries.
package digest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// Kind is the canonical event kind stored in event_type.
type Kind string

const (
	KindUnknown Kind = ""
	KindMint    Kind = "mint"
	KindSale    Kind = "sale"
)

// SubKind preserves the distinction between the sale synonyms.
type SubKind string

const (
	SubKindNone      SubKind = ""
	SubKindSwap      SubKind = "swap"
	SubKindTokenBuy  SubKind = "token_buy"
	SubKindTokenSell SubKind = "token_sell"
	SubKindNFTSale   SubKind = "nft_sale"
)

type kindMapping struct {
	kind Kind
	sub  SubKind
}

var kindAliases = map[string]kindMapping{
	"mint":       {KindMint, SubKindNone},
	"mints":      {KindMint, SubKindNone},
	"minted":     {KindMint, SubKindNone},
	"sale":       {KindSale, SubKindNone},
	"sales":      {KindSale, SubKindNone},
	"sold":       {KindSale, SubKindNone},
	"nft_sale":   {KindSale, SubKindNFTSale},
	"buy":        {KindSale, SubKindTokenBuy},
	"purchase":   {KindSale, SubKindTokenBuy},
	"token_buy":  {KindSale, SubKindTokenBuy},
	"sell":       {KindSale, SubKindTokenSell},
	"token_sell": {KindSale, SubKindTokenSell},
	"swap":       {KindSale, SubKindSwap},
}

// ParseKind maps an input kind to its canonical kind and sub-kind.
// Unrecognized input yields KindUnknown.
func ParseKind(raw string) (Kind, SubKind) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	m, ok := kindAliases[key]
	if !ok {
		return KindUnknown, SubKindNone
	}
	return m.kind, m.sub
}

// ParseSubKind accepts only the explicit sub-kind names.
func ParseSubKind(raw string) (SubKind, bool) {
	switch s := SubKind(strings.ToLower(strings.TrimSpace(raw))); s {
	case SubKindSwap, SubKindTokenBuy, SubKindTokenSell, SubKindNFTSale:
		return s, true
	default:
		return SubKindNone, false
	}
}

// Event is a stored digest fact.
type Event struct {
	ID           int64
	GuildID      string
	Kind         Kind
	SubKind      SubKind
	Chain        chain.ID
	Contract     string
	TokenID      string
	AmountNative decimal.NullDecimal
	AmountETH    decimal.NullDecimal
	AmountUSD    decimal.NullDecimal
	Buyer        string
	Seller       string
	TxHash       string
	Timestamp    time.Time
}

// RecordInput is the canonical shape accepted by Store.Record. String fields
// may arrive in any case and with surrounding whitespace.
type RecordInput struct {
	GuildID      string
	Kind         string
	SubKind      string
	Chain        string
	Contract     string
	TokenID      string
	AmountNative *decimal.Decimal
	AmountETH    *decimal.Decimal
	AmountUSD    *decimal.Decimal
	Buyer        string
	Seller       string
	TxHash       string
	Timestamp    time.Time
}

// Normalize turns an input into a storable event. It returns false when the
// community or the kind cannot be determined.
func Normalize(in RecordInput, now time.Time) (Event, bool) {
	guildID := strings.TrimSpace(in.GuildID)
	if guildID == "" {
		return Event{}, false
	}
	kind, sub := ParseKind(in.Kind)
	if kind == KindUnknown {
		return Event{}, false
	}
	if explicit, ok := ParseSubKind(in.SubKind); ok && kind == KindSale {
		sub = explicit
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}

	return Event{
		GuildID:      guildID,
		Kind:         kind,
		SubKind:      sub,
		Chain:        chain.Normalize(in.Chain),
		Contract:     lower(in.Contract),
		TokenID:      strings.TrimSpace(in.TokenID),
		AmountNative: nullDecimal(in.AmountNative),
		AmountETH:    nullDecimal(in.AmountETH),
		AmountUSD:    nullDecimal(in.AmountUSD),
		Buyer:        lower(in.Buyer),
		Seller:       lower(in.Seller),
		TxHash:       lower(in.TxHash),
		Timestamp:    ts.UTC(),
	}, true
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

var fieldAliases = map[string][]string{
	"guild":        {"guildId", "guild_id", "guildID", "communityId", "community_id", "community", "guild"},
	"kind":         {"type", "eventType", "event_type", "kind"},
	"subKind":      {"subType", "sub_type", "subKind", "sub_kind"},
	"chain":        {"chain", "network", "chainId", "chain_id"},
	"contract":     {"contract", "contractAddress", "contract_address", "address", "collection"},
	"tokenId":      {"tokenId", "token_id", "tokenID"},
	"amountNative": {"amountNative", "amount_native", "native", "nativeAmount"},
	"amountEth":    {"amountEth", "amount_eth", "ethValue", "eth_value", "eth", "priceEth"},
	"amountUsd":    {"amountUsd", "amount_usd", "usdValue", "usd_value", "usd", "priceUsd"},
	"buyer":        {"buyer", "to", "buyerAddress"},
	"seller":       {"seller", "from", "sellerAddress"},
	"txHash":       {"txHash", "tx_hash", "transactionHash", "transaction_hash", "hash", "tx"},
	"timestamp":    {"timestamp", "ts", "time", "createdAt"},
}

// FromFields folds a loosely-keyed payload (for example a marketplace webhook
// body) into a RecordInput. The first alias present wins.
func FromFields(fields map[string]any) RecordInput {
	get := func(name string) any {
		for _, key := range fieldAliases[name] {
			if v, ok := fields[key]; ok && v != nil {
				return v
			}
		}
		return nil
	}

	return RecordInput{
		GuildID:      asString(get("guild")),
		Kind:         asString(get("kind")),
		SubKind:      asString(get("subKind")),
		Chain:        asString(get("chain")),
		Contract:     asString(get("contract")),
		TokenID:      asString(get("tokenId")),
		AmountNative: asDecimal(get("amountNative")),
		AmountETH:    asDecimal(get("amountEth")),
		AmountUSD:    asDecimal(get("amountUsd")),
		Buyer:        asString(get("buyer")),
		Seller:       asString(get("seller")),
		TxHash:       asString(get("txHash")),
		Timestamp:    asTime(get("timestamp")),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func asDecimal(v any) *decimal.Decimal {
	var (
		d   decimal.Decimal
		err error
	)
	switch t := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		d = t
	case float64:
		d = decimal.NewFromFloat(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case json.Number:
		d, err = decimal.NewFromString(t.String())
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		d, err = decimal.NewFromString(strings.TrimSpace(t))
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &d
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	case float64:
		return unixAuto(int64(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return unixAuto(n)
		}
	}
	return time.Time{}
}

// unixAuto accepts seconds or milliseconds.
func unixAuto(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
