package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/mintwatch/internal/metrics"
	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/digest"
	"github.com/chainsafe/mintwatch/pkg/ethereum"
	"github.com/chainsafe/mintwatch/pkg/notify"
)

// EventSource reads blocks and decoded events from one chain.
type EventSource interface {
	Chain() chain.ID
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FetchEvents(ctx context.Context, from, to uint64, contracts []common.Address) ([]ethereum.Event, error)
}

// ContractLister loads the contracts tracked on a chain.
type ContractLister interface {
	ListByChain(ctx context.Context, id chain.ID) ([]Contract, error)
}

// Recorder persists digest facts.
type Recorder interface {
	Record(ctx context.Context, in digest.RecordInput) (bool, error)
}

// Notifier fans alerts out to channels through their relay webhooks.
type Notifier interface {
	SendViaRelay(ctx context.Context, channelIDs []string, p notify.Payload) notify.Report
}

// PriceSource quotes USD prices.
type PriceSource interface {
	USD(ctx context.Context, symbol string) decimal.Decimal
}

// ChainSettings are the per-chain polling parameters.
type ChainSettings struct {
	PollInterval  time.Duration
	WrappedNative common.Address
	ExplorerURL   string
}

// Watcher runs one polling loop per chain.
type Watcher struct {
	contracts      ContractLister
	recorder       Recorder
	notifier       Notifier
	prices         PriceSource
	seen           *SeenCache
	reloadInterval time.Duration
	logger         *zap.Logger
	now            func() time.Time

	loops []*chainLoop

	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type chainLoop struct {
	id       chain.ID
	source   EventSource
	settings ChainSettings

	lastBlock  uint64
	lastReload time.Time
	contracts  map[common.Address]*Contract
	addresses  []common.Address
	ready      atomic.Bool
}

// NewWatcher creates a watcher over sources. settings are looked up by each
// source's chain.
func NewWatcher(
	sources []EventSource,
	settings map[chain.ID]ChainSettings,
	contracts ContractLister,
	recorder Recorder,
	notifier Notifier,
	prices PriceSource,
	seen *SeenCache,
	reloadInterval time.Duration,
	logger *zap.Logger,
) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}

	w := &Watcher{
		contracts:      contracts,
		recorder:       recorder,
		notifier:       notifier,
		prices:         prices,
		seen:           seen,
		reloadInterval: reloadInterval,
		logger:         logger,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}
	for _, src := range sources {
		s := settings[src.Chain()]
		if s.PollInterval <= 0 {
			s.PollInterval = 12 * time.Second
		}
		w.loops = append(w.loops, &chainLoop{id: src.Chain(), source: src, settings: s})
	}
	return w
}

// Start launches the chain loops in the background.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.Info("Starting tracker", zap.Int("chains", len(w.loops)))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("Tracker stopped with error", zap.Error(err))
		}
	}()
}

// Stop signals every loop and waits for them to exit. Later calls are no-ops.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping tracker")
		close(w.stopCh)
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
		w.logger.Info("Tracker stopped")
	})
}

// Run blocks until ctx is done, polling every chain concurrently.
func (w *Watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, loop := range w.loops {
		g.Go(func() error {
			return w.runChain(ctx, loop)
		})
	}
	return g.Wait()
}

// Ready reports whether every chain loop has observed a block.
func (w *Watcher) Ready() bool {
	if len(w.loops) == 0 {
		return false
	}
	for _, loop := range w.loops {
		if !loop.ready.Load() {
			return false
		}
	}
	return true
}

func (w *Watcher) runChain(ctx context.Context, loop *chainLoop) error {
	logger := w.logger.With(zap.String("chain", string(loop.id)))
	logger.Info("Chain loop started", zap.Duration("poll_interval", loop.settings.PollInterval))

	ticker := time.NewTicker(loop.settings.PollInterval)
	defer ticker.Stop()

	w.tick(ctx, loop)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.tick(ctx, loop)
		}
	}
}

// tick runs one poll cycle. Failures are logged and the cycle is skipped.
func (w *Watcher) tick(ctx context.Context, loop *chainLoop) {
	logger := w.logger.With(zap.String("chain", string(loop.id)))

	if loop.contracts == nil || w.now().Sub(loop.lastReload) >= w.reloadInterval {
		if err := w.reload(ctx, loop); err != nil {
			logger.Warn("Failed to reload tracked contracts", zap.Error(err))
			metrics.ErrorsTotal.WithLabelValues("tracker", "reload").Inc()
		}
	}

	latest, err := loop.source.GetLatestBlockNumber(ctx)
	if err != nil {
		logger.Warn("Failed to read latest block", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("tracker", "latest_block").Inc()
		return
	}
	loop.ready.Store(true)

	if latest <= loop.lastBlock {
		return
	}
	if len(loop.addresses) == 0 {
		w.advance(loop, latest)
		return
	}

	from := latest
	if latest > 0 {
		from = latest - 1
	}
	events, err := loop.source.FetchEvents(ctx, from, latest, loop.addresses)
	if err != nil {
		logger.Warn("Failed to fetch events",
			zap.Uint64("from", from),
			zap.Uint64("to", latest),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("tracker", "fetch").Inc()
		return
	}

	usd := w.lazyPrices(ctx)
	for _, evt := range events {
		w.handle(ctx, loop, evt, usd)
	}
	w.advance(loop, latest)
}

func (w *Watcher) advance(loop *chainLoop, block uint64) {
	loop.lastBlock = block
	metrics.LastProcessedBlock.WithLabelValues(string(loop.id)).Set(float64(block))
}

func (w *Watcher) handle(ctx context.Context, loop *chainLoop, evt ethereum.Event, usd func(string) decimal.Decimal) {
	meta := evt.Metadata()
	metrics.EventsDetected.WithLabelValues(string(loop.id), string(evt.Kind())).Inc()

	key := evt.Key()
	if w.seen.Seen(key) {
		return
	}

	contract, ok := loop.contracts[meta.Contract]
	if !ok {
		return
	}

	in := ToRecord(contract, evt, loop.settings.WrappedNative, usd, w.now().UTC())
	inserted, err := w.recorder.Record(ctx, in)
	if err != nil {
		// let the next delivery of this log try again
		w.seen.Forget(key)
		w.logger.Error("Failed to record event",
			zap.String("chain", string(loop.id)),
			zap.String("key", key),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("tracker", "record").Inc()
		return
	}
	if !inserted || len(contract.ChannelIDs) == 0 {
		return
	}

	report := w.notifier.SendViaRelay(ctx, contract.ChannelIDs, FormatAlert(contract, in, loop.settings.ExplorerURL))
	w.logger.Debug("Alert dispatched",
		zap.String("chain", string(loop.id)),
		zap.String("contract", in.Contract),
		zap.String("kind", in.Kind),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed))
}

func (w *Watcher) reload(ctx context.Context, loop *chainLoop) error {
	list, err := w.contracts.ListByChain(ctx, loop.id)
	if err != nil {
		return fmt.Errorf("failed to list contracts: %w", err)
	}

	byAddr := make(map[common.Address]*Contract, len(list))
	addrs := make([]common.Address, 0, len(list))
	for i := range list {
		if !common.IsHexAddress(list[i].Address) {
			continue
		}
		addr := common.HexToAddress(list[i].Address)
		byAddr[addr] = &list[i]
		addrs = append(addrs, addr)
	}

	loop.contracts = byAddr
	loop.addresses = addrs
	loop.lastReload = w.now()
	metrics.TrackedContracts.WithLabelValues(string(loop.id)).Set(float64(len(addrs)))
	return nil
}

// lazyPrices fetches each symbol's price at most once per tick, and only
// when a payment needs it.
func (w *Watcher) lazyPrices(ctx context.Context) func(string) decimal.Decimal {
	cache := make(map[string]decimal.Decimal)
	return func(symbol string) decimal.Decimal {
		if price, ok := cache[symbol]; ok {
			return price
		}
		price := decimal.Zero
		if w.prices != nil {
			price = w.prices.USD(ctx, symbol)
		}
		cache[symbol] = price
		return price
	}
}
