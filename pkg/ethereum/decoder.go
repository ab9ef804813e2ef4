package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

const trackedABI = `[
  {"type":"event","name":"Transfer","anonymous":false,"inputs":[
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":true,"name":"tokenId","type":"uint256"}]},
  {"type":"event","name":"ERC20Payment","anonymous":false,"inputs":[
    {"indexed":true,"name":"from","type":"address"},
    {"indexed":true,"name":"to","type":"address"},
    {"indexed":false,"name":"token","type":"address"},
    {"indexed":false,"name":"amount","type":"uint256"}]},
  {"type":"function","name":"ownerOf","stateMutability":"view",
    "inputs":[{"name":"tokenId","type":"uint256"}],
    "outputs":[{"name":"","type":"address"}]}
]`

// Decoder turns raw logs into mint and payment events.
type Decoder struct {
	abi        abi.ABI
	transferID common.Hash
	paymentID  common.Hash
}

// NewDecoder parses the tracked contract ABI.
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(trackedABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse tracked abi: %w", err)
	}
	return &Decoder{
		abi:        parsed,
		transferID: parsed.Events["Transfer"].ID,
		paymentID:  parsed.Events["ERC20Payment"].ID,
	}, nil
}

// Topics returns the topic filter matching every decodable event.
func (d *Decoder) Topics() [][]common.Hash {
	return [][]common.Hash{{d.transferID, d.paymentID}}
}

// Decode classifies a single log. The second return value is false for logs
// that do not match a known signature or are not interesting (non-mint transfers).
func (d *Decoder) Decode(id chain.ID, lg types.Log) (Event, bool) {
	if lg.Removed || len(lg.Topics) == 0 {
		return nil, false
	}

	meta := Meta{
		Chain:       id,
		Contract:    lg.Address,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}

	switch lg.Topics[0] {
	case d.transferID:
		// ERC-20 transfers share the signature but keep the value in data
		if len(lg.Topics) != 4 {
			return nil, false
		}
		from := common.BytesToAddress(lg.Topics[1].Bytes())
		if from != (common.Address{}) {
			return nil, false
		}
		return &MintEvent{
			Meta:    meta,
			To:      common.BytesToAddress(lg.Topics[2].Bytes()),
			TokenID: new(big.Int).SetBytes(lg.Topics[3].Bytes()),
		}, true

	case d.paymentID:
		if len(lg.Topics) != 3 {
			return nil, false
		}
		var data struct {
			Token  common.Address
			Amount *big.Int
		}
		if err := d.abi.UnpackIntoInterface(&data, "ERC20Payment", lg.Data); err != nil {
			return nil, false
		}
		return &PaymentEvent{
			Meta:   meta,
			From:   common.BytesToAddress(lg.Topics[1].Bytes()),
			To:     common.BytesToAddress(lg.Topics[2].Bytes()),
			Token:  data.Token,
			Amount: data.Amount,
		}, true
	}

	return nil, false
}

// DecodeAll decodes a batch, dropping anything that is not a mint or payment.
func (d *Decoder) DecodeAll(id chain.ID, logs []types.Log) []Event {
	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		if ev, ok := d.Decode(id, lg); ok {
			events = append(events, ev)
		}
	}
	return events
}
