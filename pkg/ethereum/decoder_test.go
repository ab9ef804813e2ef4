package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/mintwatch/pkg/chain"
)

var (
	testContract = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testMinter   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSeller   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testWETH     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func mintLog(t *testing.T, to common.Address, tokenID int64, tx string, index uint) types.Log {
	t.Helper()
	return types.Log{
		Address: testContract,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)")),
			addressTopic(common.Address{}),
			addressTopic(to),
			common.BigToHash(big.NewInt(tokenID)),
		},
		TxHash:      common.HexToHash(tx),
		BlockNumber: 100,
		Index:       index,
	}
}

func paymentLog(t *testing.T, d *Decoder, from, to, token common.Address, amount *big.Int, tx string) types.Log {
	t.Helper()
	data, err := d.abi.Events["ERC20Payment"].Inputs.NonIndexed().Pack(token, amount)
	require.NoError(t, err)
	return types.Log{
		Address: testContract,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("ERC20Payment(address,address,address,uint256)")),
			addressTopic(from),
			addressTopic(to),
		},
		Data:        data,
		TxHash:      common.HexToHash(tx),
		BlockNumber: 101,
	}
}

func TestDecoder_Mint(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	ev, ok := d.Decode(chain.Ethereum, mintLog(t, testMinter, 42, "0xabc", 3))
	require.True(t, ok)
	require.Equal(t, KindMint, ev.Kind())

	mint, ok := ev.(*MintEvent)
	require.True(t, ok)
	require.Equal(t, testMinter, mint.To)
	require.Equal(t, int64(42), mint.TokenID.Int64())
	require.Equal(t, chain.Ethereum, mint.Chain)
	require.Equal(t, testContract, mint.Contract)
	require.Equal(t, common.HexToHash("0xabc").Hex()+":3", ev.Key())
}

func TestDecoder_IgnoresNonMintTransfers(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := mintLog(t, testMinter, 1, "0x01", 0)
	lg.Topics[1] = addressTopic(testSeller)

	_, ok := d.Decode(chain.Ethereum, lg)
	require.False(t, ok)
}

func TestDecoder_IgnoresERC20Transfer(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	lg := mintLog(t, testMinter, 1, "0x01", 0)
	lg.Topics = lg.Topics[:3]
	lg.Data = common.BigToHash(big.NewInt(1000)).Bytes()

	_, ok := d.Decode(chain.Ethereum, lg)
	require.False(t, ok)
}

func TestDecoder_Payment(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	amount, _ := new(big.Int).SetString("1500000000000000000", 10)
	ev, ok := d.Decode(chain.Base, paymentLog(t, d, testSeller, testMinter, testWETH, amount, "0xdef"))
	require.True(t, ok)

	payment, ok := ev.(*PaymentEvent)
	require.True(t, ok)
	require.Equal(t, KindPayment, payment.Kind())
	require.Equal(t, testSeller, payment.From)
	require.Equal(t, testMinter, payment.To)
	require.Equal(t, testWETH, payment.Token)
	require.Equal(t, 0, amount.Cmp(payment.Amount))
	require.Equal(t, chain.Base, payment.Chain)
}

func TestDecoder_SkipsUnknownAndMalformed(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	approval := types.Log{
		Address: testContract,
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte("Approval(address,address,uint256)")),
			addressTopic(testSeller),
			addressTopic(testMinter),
		},
	}
	truncated := paymentLog(t, d, testSeller, testMinter, testWETH, big.NewInt(1), "0x02")
	truncated.Data = truncated.Data[:10]

	removed := mintLog(t, testMinter, 7, "0x03", 0)
	removed.Removed = true

	events := d.DecodeAll(chain.Ethereum, []types.Log{
		approval,
		truncated,
		removed,
		{Address: testContract},
		mintLog(t, testMinter, 8, "0x04", 1),
	})
	require.Len(t, events, 1)
	require.Equal(t, KindMint, events[0].Kind())
}
