package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

// Kind identifies which known signature produced an event.
type Kind string

const (
	KindMint    Kind = "mint"
	KindPayment Kind = "payment"
)

// Event is a decoded on-chain fact.
type Event interface {
	Key() string
	Kind() Kind
	Metadata() Meta
}

// Meta carries the log coordinates shared by every decoded event.
type Meta struct {
	Chain       chain.ID
	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

// Key identifies the log that produced the event. A re-delivered log yields the same key.
func (m Meta) Key() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(m.TxHash.Hex()), m.LogIndex)
}

// Metadata returns the log coordinates.
func (m Meta) Metadata() Meta { return m }

// MintEvent is an ERC-721 Transfer from the zero address.
type MintEvent struct {
	Meta
	To      common.Address
	TokenID *big.Int
}

// Kind implements Event.
func (*MintEvent) Kind() Kind { return KindMint }

// PaymentEvent is an ERC20Payment emitted by a tracked sale contract.
type PaymentEvent struct {
	Meta
	From   common.Address
	To     common.Address
	Token  common.Address
	Amount *big.Int
}

// Kind implements Event.
func (*PaymentEvent) Kind() Kind { return KindPayment }
