// Package chain defines the closed set of blockchains the bot understands.
package chain

import "strings"

// ID is the canonical short identifier of a chain as stored in the database.
type ID string

const (
	Unknown  ID = "unknown"
	Ethereum ID = "eth"
	Base     ID = "base"
	Ape      ID = "ape"
	Polygon  ID = "polygon"
	Arbitrum ID = "arbitrum"
	Optimism ID = "optimism"
)

var aliases = map[string]ID{
	"eth":      Ethereum,
	"ethereum": Ethereum,
	"mainnet":  Ethereum,
	"1":        Ethereum,
	"base":     Base,
	"8453":     Base,
	"ape":      Ape,
	"apechain": Ape,
	"33139":    Ape,
	"polygon":  Polygon,
	"matic":    Polygon,
	"137":      Polygon,
	"arbitrum": Arbitrum,
	"arb":      Arbitrum,
	"42161":    Arbitrum,
	"optimism": Optimism,
	"op":       Optimism,
	"10":       Optimism,
}

// Parse maps any accepted alias to its canonical ID. Empty input means
// Ethereum. Unrecognized input yields (Unknown, false).
func Parse(raw string) (ID, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Ethereum, true
	}
	id, ok := aliases[key]
	if !ok {
		return Unknown, false
	}
	return id, true
}

// Normalize is Parse without the ok flag.
func Normalize(raw string) ID {
	id, _ := Parse(raw)
	return id
}

// All returns every known chain in display order.
func All() []ID {
	return []ID{Ethereum, Base, Ape, Polygon, Arbitrum, Optimism}
}

func (id ID) String() string { return string(id) }

// Valid reports whether id is one of the known chains.
func (id ID) Valid() bool {
	for _, known := range All() {
		if id == known {
			return true
		}
	}
	return false
}

// NativeSymbol returns the ticker of the chain's gas token.
func (id ID) NativeSymbol() string {
	switch id {
	case Ape:
		return "APE"
	case Polygon:
		return "POL"
	default:
		return "ETH"
	}
}

// DisplayName is used in chat embeds.
func (id ID) DisplayName() string {
	switch id {
	case Ethereum:
		return "Ethereum"
	case Base:
		return "Base"
	case Ape:
		return "ApeChain"
	case Polygon:
		return "Polygon"
	case Arbitrum:
		return "Arbitrum"
	case Optimism:
		return "Optimism"
	default:
		return "Unknown"
	}
}
