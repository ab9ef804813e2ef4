package tracker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/ethereum"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

var (
	nftAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	saleAddr = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	usdc     = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fakeSource struct {
	id                       chain.ID
	GetLatestBlockNumberFunc func(ctx context.Context) (uint64, error)
	FetchEventsFunc          func(ctx context.Context, from, to uint64, contracts []common.Address) ([]ethereum.Event, error)
}

func (f *fakeSource) Chain() chain.ID { return f.id }

func (f *fakeSource) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.GetLatestBlockNumberFunc(ctx)
}

func (f *fakeSource) FetchEvents(ctx context.Context, from, to uint64, contracts []common.Address) ([]ethereum.Event, error) {
	return f.FetchEventsFunc(ctx, from, to, contracts)
}

type fakeLister struct {
	ListByChainFunc func(ctx context.Context, id chain.ID) ([]Contract, error)
}

func (f *fakeLister) ListByChain(ctx context.Context, id chain.ID) ([]Contract, error) {
	return f.ListByChainFunc(ctx, id)
}

// memRecorder dedupes on the same key as the digest store index.
type memRecorder struct {
	mu      sync.Mutex
	records []digest.RecordInput
	keys    map[string]bool
	err     error
}

func (m *memRecorder) Record(_ context.Context, in digest.RecordInput) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	key := in.GuildID + "|" + in.Kind + "|" + in.TxHash + "|" + in.TokenID
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	m.records = append(m.records, in)
	return true, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends [][]string
	last  notify.Payload
}

func (f *fakeNotifier) SendViaRelay(_ context.Context, channelIDs []string, p notify.Payload) notify.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, channelIDs)
	f.last = p
	return notify.Report{Delivered: len(channelIDs)}
}

type fixedPrice struct {
	price decimal.Decimal
	calls int
}

func (f *fixedPrice) USD(context.Context, string) decimal.Decimal {
	f.calls++
	return f.price
}

func mint(tx string, logIndex uint, tokenID int64) *ethereum.MintEvent {
	return &ethereum.MintEvent{
		Meta: ethereum.Meta{
			Chain:    chain.Base,
			Contract: nftAddr,
			TxHash:   common.HexToHash(tx),
			LogIndex: logIndex,
		},
		To:      alice,
		TokenID: big.NewInt(tokenID),
	}
}

func payment(tx string, token common.Address, wei string) *ethereum.PaymentEvent {
	amount, _ := new(big.Int).SetString(wei, 10)
	return &ethereum.PaymentEvent{
		Meta: ethereum.Meta{
			Chain:    chain.Base,
			Contract: saleAddr,
			TxHash:   common.HexToHash(tx),
		},
		From:   alice,
		To:     bob,
		Token:  token,
		Amount: amount,
	}
}

type harness struct {
	watcher  *Watcher
	loop     *chainLoop
	source   *fakeSource
	recorder *memRecorder
	notifier *fakeNotifier
	prices   *fixedPrice
	latest   uint64
	events   []ethereum.Event
	fetches  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		recorder: &memRecorder{},
		notifier: &fakeNotifier{},
		prices:   &fixedPrice{price: decimal.NewFromInt(2000)},
		latest:   100,
	}
	h.source = &fakeSource{
		id: chain.Base,
		GetLatestBlockNumberFunc: func(context.Context) (uint64, error) {
			return h.latest, nil
		},
		FetchEventsFunc: func(_ context.Context, from, to uint64, contracts []common.Address) ([]ethereum.Event, error) {
			h.fetches++
			assert.Equal(t, to-1, from)
			assert.Len(t, contracts, 2)
			return h.events, nil
		},
	}
	lister := &fakeLister{
		ListByChainFunc: func(_ context.Context, id chain.ID) ([]Contract, error) {
			assert.Equal(t, chain.Base, id)
			return []Contract{
				{Address: "0x00000000000000000000000000000000000000aa", Name: "Apes", Chain: chain.Base, GuildID: "g1", ChannelIDs: []string{"c1", "c2"}},
				{Address: "0x00000000000000000000000000000000000000bb", Name: "Market", Chain: chain.Base, GuildID: "g1"},
			}, nil
		},
	}
	seen, err := NewSeenCache(100)
	require.NoError(t, err)

	h.watcher = NewWatcher(
		[]EventSource{h.source},
		map[chain.ID]ChainSettings{chain.Base: {PollInterval: time.Hour, WrappedNative: weth, ExplorerURL: "https://basescan.org/"}},
		lister, h.recorder, h.notifier, h.prices, seen, time.Hour, zap.NewNop(),
	)
	h.loop = h.watcher.loops[0]
	return h
}

func TestWatcher_TickRecordsAndAlertsMints(t *testing.T) {
	h := newHarness(t)
	h.events = []ethereum.Event{mint("0x01", 0, 7), mint("0x01", 1, 8)}

	assert.False(t, h.watcher.Ready())
	h.watcher.tick(context.Background(), h.loop)
	assert.True(t, h.watcher.Ready())

	require.Len(t, h.recorder.records, 2)
	rec := h.recorder.records[0]
	assert.Equal(t, "g1", rec.GuildID)
	assert.Equal(t, "mint", rec.Kind)
	assert.Equal(t, "7", rec.TokenID)
	assert.Equal(t, "base", rec.Chain)
	assert.Nil(t, rec.AmountETH)

	require.Len(t, h.notifier.sends, 2)
	assert.Equal(t, []string{"c1", "c2"}, h.notifier.sends[0])
	embed := h.notifier.last.Embeds[0]
	assert.Equal(t, "New mint: Apes", embed.Title)
	assert.Contains(t, embed.URL, "https://basescan.org/tx/0x")
	assert.Equal(t, uint64(100), h.loop.lastBlock)
	assert.Zero(t, h.prices.calls, "mints never need a price")
}

func TestWatcher_TickSkipsSeenAndUnchangedBlocks(t *testing.T) {
	h := newHarness(t)
	h.events = []ethereum.Event{mint("0x01", 0, 7)}

	h.watcher.tick(context.Background(), h.loop)
	require.Equal(t, 1, h.fetches)

	// same head: nothing fetched
	h.watcher.tick(context.Background(), h.loop)
	assert.Equal(t, 1, h.fetches)

	// overlapping window re-delivers the same log
	h.latest = 101
	h.watcher.tick(context.Background(), h.loop)
	assert.Equal(t, 2, h.fetches)
	assert.Len(t, h.recorder.records, 1)
	assert.Len(t, h.notifier.sends, 1)
}

func TestWatcher_DuplicateInStoreIsNotAlerted(t *testing.T) {
	h := newHarness(t)
	evt := mint("0x01", 0, 7)
	h.events = []ethereum.Event{evt}
	h.watcher.tick(context.Background(), h.loop)
	require.Len(t, h.notifier.sends, 1)

	// after a restart the seen cache is empty but the store still dedupes
	h.watcher.seen.Forget(evt.Key())
	h.latest = 101
	h.watcher.tick(context.Background(), h.loop)
	assert.Len(t, h.notifier.sends, 1)
}

func TestWatcher_RecordErrorAllowsRetry(t *testing.T) {
	h := newHarness(t)
	h.events = []ethereum.Event{mint("0x01", 0, 7)}
	h.recorder.err = errors.New("db down")

	h.watcher.tick(context.Background(), h.loop)
	assert.Empty(t, h.notifier.sends)

	h.recorder.err = nil
	h.latest = 101
	h.watcher.tick(context.Background(), h.loop)
	assert.Len(t, h.notifier.sends, 1)
}

func TestWatcher_PricesPayments(t *testing.T) {
	h := newHarness(t)
	h.events = []ethereum.Event{
		payment("0x0a", weth, "1500000000000000000"),
		payment("0x0b", usdc, "2000000000000000000"),
		payment("0x0c", common.Address{}, "500000000000000000"),
	}

	h.watcher.tick(context.Background(), h.loop)
	require.Len(t, h.recorder.records, 3)

	wethSale := h.recorder.records[0]
	assert.Equal(t, "sale", wethSale.Kind)
	require.NotNil(t, wethSale.AmountETH)
	assert.True(t, wethSale.AmountETH.Equal(decimal.RequireFromString("1.5")))
	require.NotNil(t, wethSale.AmountUSD)
	assert.True(t, wethSale.AmountUSD.Equal(decimal.NewFromInt(3000)))
	assert.Nil(t, wethSale.AmountNative)
	assert.Equal(t, "0x0000000000000000000000000000000000000a11", wethSale.Buyer)

	tokenSale := h.recorder.records[1]
	assert.Nil(t, tokenSale.AmountETH)
	assert.Nil(t, tokenSale.AmountUSD)
	require.NotNil(t, tokenSale.AmountNative)
	assert.True(t, tokenSale.AmountNative.Equal(decimal.NewFromInt(2)))

	nativeSale := h.recorder.records[2]
	require.NotNil(t, nativeSale.AmountETH)
	assert.True(t, nativeSale.AmountETH.Equal(decimal.RequireFromString("0.5")))

	assert.Equal(t, 1, h.prices.calls, "price is fetched once per tick")
	assert.Empty(t, h.notifier.sends, "sale contract has no channels")
}

func TestWatcher_ZeroPriceLeavesUSDEmpty(t *testing.T) {
	h := newHarness(t)
	h.prices.price = decimal.Zero
	h.events = []ethereum.Event{payment("0x0a", weth, "1000000000000000000")}

	h.watcher.tick(context.Background(), h.loop)
	require.Len(t, h.recorder.records, 1)
	assert.NotNil(t, h.recorder.records[0].AmountETH)
	assert.Nil(t, h.recorder.records[0].AmountUSD)
}

func TestWatcher_FetchErrorDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	h.source.FetchEventsFunc = func(context.Context, uint64, uint64, []common.Address) ([]ethereum.Event, error) {
		return nil, errors.New("all endpoints failed")
	}

	h.watcher.tick(context.Background(), h.loop)
	assert.Zero(t, h.loop.lastBlock)
	assert.True(t, h.watcher.Ready(), "a block was observed")
}

func TestWatcher_StartStop(t *testing.T) {
	h := newHarness(t)
	h.watcher.Start(context.Background())
	require.Eventually(t, h.watcher.Ready, time.Second, 10*time.Millisecond)
	h.watcher.Stop()
}

func TestWatcher_StopTwice(t *testing.T) {
	h := newHarness(t)
	h.watcher.Start(context.Background())
	require.Eventually(t, h.watcher.Ready, time.Second, 10*time.Millisecond)

	// the gateway failure path stops the watcher before shutdown runs
	h.watcher.Stop()
	assert.NotPanics(t, h.watcher.Stop)
}

func TestSeenCache(t *testing.T) {
	c, err := NewSeenCache(2)
	require.NoError(t, err)

	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("a"))
	assert.False(t, c.Seen("b"))
	assert.False(t, c.Seen("c"), "evicts the oldest")
	assert.False(t, c.Seen("a"))
	assert.Equal(t, 2, c.Len())
}
