// Package bot implements app.Runner for the mintwatch process: the Discord
// gateway, the chain watchers, the digest scheduler and the ops HTTP server.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/mintwatch/pkg/app/http"
	"github.com/chainsafe/mintwatch/pkg/app/httpserver"
	"github.com/chainsafe/mintwatch/pkg/assistant"
	"github.com/chainsafe/mintwatch/pkg/auth"
	"github.com/chainsafe/mintwatch/pkg/chain"
	"github.com/chainsafe/mintwatch/pkg/command"
	"github.com/chainsafe/mintwatch/pkg/config"
	"github.com/chainsafe/mintwatch/pkg/cooldown"
	"github.com/chainsafe/mintwatch/pkg/digest"
	digestservice "github.com/chainsafe/mintwatch/pkg/digest/service"
	"github.com/chainsafe/mintwatch/pkg/discord"
	"github.com/chainsafe/mintwatch/pkg/ethereum"
	"github.com/chainsafe/mintwatch/pkg/market"
	"github.com/chainsafe/mintwatch/pkg/notify"
	"github.com/chainsafe/mintwatch/pkg/pgutil"
	"github.com/chainsafe/mintwatch/pkg/scheduler"
	"github.com/chainsafe/mintwatch/pkg/staking"
	"github.com/chainsafe/mintwatch/pkg/tier"
	"github.com/chainsafe/mintwatch/pkg/tracker"
)

const defaultHTTPMiddlewareTimeout = 60 * time.Second

// Server holds configuration for the bot process.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new bot Server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run starts every component and blocks until an OS shutdown signal is
// received or the HTTP server fails.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting mintwatch")

	db, err := pgutil.ConnectDB(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect bot db: %w", err)
	}
	defer func() { _ = db.Close() }()

	digestStore := digest.NewStore(db, logger)
	contracts := tracker.NewStore(db)
	gate := tier.NewGate(tier.NewStore(db), logger)

	clients, err := newChainClients(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	prices := market.NewPriceClient(cfg.Market, logger)

	router := command.NewRouter(logger)
	gateway, err := discord.New(cfg.Discord, router, logger)
	if err != nil {
		return err
	}

	rest := gateway.REST()
	dispatcher := notify.NewDispatcher(rest, notify.NewRelayCache(rest, cfg.Discord.RelayName, logger), logger)

	aggregator := digest.NewAggregator(digestStore, cfg.Digest.DefaultWindowHours)
	sched, err := scheduler.New(digestStore, aggregator, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	owners := make(map[chain.ID]staking.OwnerChecker, len(clients))
	for id, c := range clients {
		owners[id] = c
	}

	registerCommands(router, commandDeps{
		contracts: contracts,
		chains:    sortedChains(clients),
		settings:  digestStore,
		scheduler: sched,
		staking:   staking.NewService(staking.NewStore(db), owners, logger),
		gate:      gate,
		ownerIDs:  cfg.Discord.OwnerIDs,
		limiter:   cooldown.NewRegistry(cfg.Cooldown),
		prices:    prices,
		metadata:  market.NewMetadataClient(cfg.Market, logger),
		assistant: assistant.NewClient(cfg.Assistant, logger),
	})

	watcher, err := newWatcher(cfg, clients, contracts, digestStore, dispatcher, prices, logger)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	watcher.Start(ctx)

	if err := gateway.Open(ctx); err != nil {
		watcher.Stop()
		sched.Stop()
		return err
	}

	digestSvc := digestservice.NewLog(digestservice.NewService(digestStore, aggregator, sched), logger)
	handler := newRouter(cfg, readiness{gateway.Ready, watcher.Ready}, digestSvc, logger)
	httpServer := apphttp.NewServer(cfg.Server, handler)

	return httpserver.ServeAndWait(ctx, logger, httpServer, cfg.Server.ShutdownTimeout,
		httpserver.Stopper{Name: "discord", Stop: gateway.Close},
		httpserver.Stopper{Name: "watcher", Stop: func(context.Context) { watcher.Stop() }},
		httpserver.Stopper{Name: "scheduler", Stop: func(context.Context) { sched.Stop() }},
	)
}

func newChainClients(cfg *config.Config, logger *zap.Logger) (map[chain.ID]*ethereum.Client, error) {
	clients := make(map[chain.ID]*ethereum.Client)
	for id, cc := range cfg.ChainIDs() {
		pool, err := ethereum.NewPool(id, cc.RPCURLs)
		if err != nil {
			return nil, fmt.Errorf("create %s rpc pool: %w", id, err)
		}
		client, err := ethereum.NewClient(pool,
			ethereum.WithLogger(logger),
			ethereum.WithRequestTimeout(cfg.RPC.RequestTimeout))
		if err != nil {
			return nil, fmt.Errorf("initialize %s client: %w", id, err)
		}
		clients[id] = client
		logger.Info("Chain client ready",
			zap.String("chain", string(id)),
			zap.Int("endpoints", pool.Len()))
	}
	return clients, nil
}

func newWatcher(
	cfg *config.Config,
	clients map[chain.ID]*ethereum.Client,
	contracts tracker.ContractLister,
	recorder tracker.Recorder,
	notifier tracker.Notifier,
	prices tracker.PriceSource,
	logger *zap.Logger,
) (*tracker.Watcher, error) {
	seen, err := tracker.NewSeenCache(cfg.Tracker.SeenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	chainCfg := cfg.ChainIDs()
	sources := make([]tracker.EventSource, 0, len(clients))
	settings := make(map[chain.ID]tracker.ChainSettings, len(clients))
	for _, id := range sortedChains(clients) {
		cc := chainCfg[id]
		sources = append(sources, clients[id])
		settings[id] = tracker.ChainSettings{
			PollInterval:  cc.PollInterval,
			WrappedNative: common.HexToAddress(cc.WrappedNative),
			ExplorerURL:   cc.ExplorerURL,
		}
	}

	return tracker.NewWatcher(sources, settings, contracts, recorder, notifier, prices, seen,
		cfg.Tracker.ReloadInterval, logger), nil
}

func sortedChains(clients map[chain.ID]*ethereum.Client) []chain.ID {
	ids := make([]chain.ID, 0, len(clients))
	for id := range clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type commandDeps struct {
	contracts tracker.ContractStore
	chains    []chain.ID
	settings  digest.SettingsStore
	scheduler command.DigestScheduler
	staking   command.StakingService
	gate      *tier.Gate
	ownerIDs  []string
	limiter   command.Limiter
	prices    command.PriceSource
	metadata  command.MetadataSource
	assistant command.Assistant
}

func registerCommands(r *command.Router, d commandDeps) {
	limit := command.WithCooldown(d.limiter)

	r.Register("track", command.NewTrack(d.contracts, d.chains))
	r.Register("digest", command.NewDigest(d.settings, d.scheduler),
		command.RequireTier(d.gate, tier.Premium))
	r.Register("stake", command.NewStake(d.staking))
	r.Register("tier", command.NewTier(d.gate, d.ownerIDs))
	r.Register("price", command.NewPrice(d.prices), limit)
	r.Register("flex", command.NewFlex(d.metadata),
		command.RequireTier(d.gate, tier.Premium), limit)
	r.Register("ask", command.NewAsk(d.assistant),
		command.RequireTier(d.gate, tier.PremiumPlus), limit)
}

// readiness reports whether the gateway is open and every chain loop has
// processed a block.
type readiness []func() bool

func (r readiness) ready() bool {
	for _, fn := range r {
		if !fn() {
			return false
		}
	}
	return true
}

func newRouter(cfg *config.Config, ready readiness, digestSvc digestservice.Service, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultHTTPMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	validator := auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if !validator.IsConfigured() {
		logger.Warn("auth.jwt_secret is empty, ops API is disabled")
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(validator, logger))
		digestservice.RegisterRoutes(r, digestSvc, logger)
	})

	return r
}
