// Package control wires the ingestion components and owns their lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/envelope-indexer/internal/api"
	"github.com/vietddude/envelope-indexer/internal/core/config"
	"github.com/vietddude/envelope-indexer/internal/core/domain"
	"github.com/vietddude/envelope-indexer/internal/indexing/decoder"
	"github.com/vietddude/envelope-indexer/internal/indexing/health"
	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/indexing/resync"
	"github.com/vietddude/envelope-indexer/internal/indexing/supervisor"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	redisclient "github.com/vietddude/envelope-indexer/internal/infra/redis"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/provider"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/routing"
	"github.com/vietddude/envelope-indexer/internal/infra/storage"
	"github.com/vietddude/envelope-indexer/internal/infra/storage/memory"
	"github.com/vietddude/envelope-indexer/internal/infra/storage/postgres"
)

const (
	healthInterval   = 10 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Config holds the application configuration.
type Config struct {
	Port     int
	GRPCPort int
	Networks []config.NetworkConfig
	Redis    redisclient.Config
	Database postgres.Config
	Resync   config.ResyncConfig
}

// FromAppConfig builds the control config from the loaded YAML file.
func FromAppConfig(cfg *config.AppConfig) Config {
	return Config{
		Port:     cfg.Server.Port,
		GRPCPort: cfg.Server.GRPCPort,
		Networks: cfg.EnabledNetworks(),
		Redis:    cfg.Redis,
		Database: cfg.Database,
		Resync:   cfg.Resync,
	}
}

// networkRuntime holds everything that runs for one network.
type networkRuntime struct {
	name       domain.Network
	provider   provider.RPCProvider
	engine     *reconcile.Engine
	queue      *redisclient.ResyncQueue
	supervisor *supervisor.Supervisor
	worker     *resync.Worker
}

// Indexer is the main application struct that manages the ingestion lifecycle.
type Indexer struct {
	cfg          Config
	networks     map[domain.Network]*networkRuntime
	order        []domain.Network
	store        storage.Store
	db           *postgres.DB
	redisClient  *redisclient.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	log          *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewIndexer creates a new Indexer with all dependencies initialized.
// Nothing runs until Start.
func NewIndexer(ctx context.Context, cfg Config) (*Indexer, error) {
	ix := &Indexer{
		cfg:      cfg,
		networks: make(map[domain.Network]*networkRuntime),
		log:      slog.Default().With("component", "indexer"),
	}

	// 1. Storage
	store, db, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	ix.store = store
	ix.db = db

	// 2. Redis resync queue (optional)
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			ix.log.Warn("Failed to connect to Redis, resync queue disabled", "error", err)
		} else {
			ix.redisClient = client
		}
	}

	// 3. Per-network pipeline
	names := make([]domain.Network, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		names = append(names, n.Name)
	}
	ix.healthMon = health.NewMonitor(names, ix.dependencies()...)

	for _, netCfg := range cfg.Networks {
		if _, dup := ix.networks[netCfg.Name]; dup {
			return nil, fmt.Errorf("duplicate network %q", netCfg.Name)
		}
		rt := ix.buildNetwork(netCfg)
		ix.networks[netCfg.Name] = rt
		ix.order = append(ix.order, netCfg.Name)
		ix.log.Info("Network configured",
			"network", netCfg.Name,
			"package", netCfg.PackageID,
			"module", netCfg.Module,
			"resync_queue", rt.queue != nil,
		)
	}

	// 4. HTTP, API and gRPC health
	ix.healthServer = health.NewServer(ix.healthMon, cfg.Port)
	resyncers := make(map[domain.Network]api.Resyncer, len(ix.networks))
	for name, rt := range ix.networks {
		resyncers[name] = rt.engine
	}
	var defaultNetwork domain.Network
	if len(ix.order) > 0 {
		defaultNetwork = ix.order[0]
	}
	ix.healthServer.Mount("/api/", api.NewServer(ix.store, resyncers, defaultNetwork).Handler())

	if cfg.GRPCPort > 0 {
		ix.grpcServer = health.NewGRPCServer(ix.healthMon, cfg.GRPCPort)
	}

	return ix, nil
}

// OpenStore connects to Postgres and applies migrations, or falls back to
// the in-memory store when no database URL is configured.
func OpenStore(ctx context.Context, cfg postgres.Config) (storage.Store, *postgres.DB, error) {
	if cfg.URL == "" {
		slog.Warn("No database configured, using in-memory storage")
		return memory.NewMemoryStorage(), nil, nil
	}

	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	slog.Info("Using PostgreSQL storage", "driver", cfg.Driver)
	return db, db, nil
}

func (ix *Indexer) buildNetwork(netCfg config.NetworkConfig) *networkRuntime {
	rt := &networkRuntime{name: netCfg.Name}

	rt.provider = provider.NewHTTPProvider(
		netCfg.Name.String(),
		netCfg.Name.String()+"-fullnode",
		netCfg.RPCURL,
		netCfg.RPCTimeout,
	)
	// Single attempt per call; retries belong to the resync queue.
	client := sui.NewClient(rt.provider, routing.RetryConfig{MaxAttempts: 1})
	dec := decoder.New(netCfg.Name, client)
	ix.healthMon.SetProvider(netCfg.Name, client.Provider())

	var queue reconcile.Enqueuer
	if ix.redisClient != nil {
		rt.queue = redisclient.NewResyncQueue(ix.redisClient, netCfg.Name)
		queue = rt.queue
	}

	rt.engine = reconcile.NewEngine(reconcile.Config{
		Network:          netCfg.Name,
		Module:           netCfg.Module,
		PropagationDelay: ix.cfg.Resync.PropagationDelay,
		RequeueDelay:     ix.cfg.Resync.PropagationDelay,
	}, ix.store, client, dec, queue)

	rt.supervisor = supervisor.New(supervisor.Config{
		Network:        netCfg.Name,
		URL:            netCfg.WSURL,
		PackageID:      netCfg.PackageID,
		Module:         netCfg.Module,
		ReconnectDelay: netCfg.ReconnectDelay,
	}, sui.NewWSDialer(handshakeTimeout), rt.engine, ix.healthMon)

	if rt.queue != nil {
		rt.worker = resync.NewWorker(resync.WorkerConfig{
			PollInterval: ix.cfg.Resync.PollInterval,
			Strategy:     resync.DefaultBackoff(ix.cfg.Resync.MaxAttempts, nil),
		}, netCfg.Name, rt.queue, rt.engine, ix.healthMon)
	}
	return rt
}

func (ix *Indexer) dependencies() []health.Dependency {
	var deps []health.Dependency
	if ix.db != nil {
		deps = append(deps, health.Dependency{Name: "database", Critical: true, Check: ix.db.Health})
	}
	if ix.redisClient != nil {
		deps = append(deps, health.Dependency{Name: "redis", Check: ix.redisClient.Health})
	}
	return deps
}

// Engine returns the reconciliation engine of a configured network.
func (ix *Indexer) Engine(network domain.Network) (*reconcile.Engine, bool) {
	rt, ok := ix.networks[network]
	if !ok {
		return nil, false
	}
	return rt.engine, true
}

// Queue returns the resync queue of a network, or nil without Redis.
func (ix *Indexer) Queue(network domain.Network) *redisclient.ResyncQueue {
	if rt, ok := ix.networks[network]; ok {
		return rt.queue
	}
	return nil
}

// Store returns the projection store.
func (ix *Indexer) Store() storage.Store {
	return ix.store
}

// HTTPHandler returns the combined health, metrics and API router.
func (ix *Indexer) HTTPHandler() http.Handler {
	return ix.healthServer.Handler()
}

// Start starts every network and server. It does not block.
func (ix *Indexer) Start(ctx context.Context) error {
	ctx, ix.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	ix.group = g

	// Start Health Server
	go func() {
		if err := ix.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ix.log.Error("Health server failed", "error", err)
		}
	}()
	if ix.grpcServer != nil {
		go func() {
			if err := ix.grpcServer.Start(); err != nil {
				ix.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start Health Monitor Background Tasks
	g.Go(func() error {
		ix.healthMon.Start(gctx, healthInterval)
		return nil
	})

	// Start DB Metrics Collector
	if ix.db != nil {
		ix.db.StartMetricsCollector(gctx)
	}

	// Supervisors of different networks never wait on each other.
	for _, name := range ix.order {
		rt := ix.networks[name]
		ix.log.Info("Starting network", "network", name)
		g.Go(func() error { return rt.supervisor.Run(gctx) })
		if rt.worker != nil {
			g.Go(func() error { return rt.worker.Run(gctx) })
		}
	}

	return nil
}

// Stop stops the indexer.
func (ix *Indexer) Stop(ctx context.Context) error {
	ix.log.Info("Stopping indexer...")

	if ix.cancel != nil {
		ix.cancel()
	}
	if ix.group != nil {
		done := make(chan error, 1)
		go func() { done <- ix.group.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				ix.log.Warn("Component exited with error", "error", err)
			}
		case <-ctx.Done():
			ix.log.Warn("Timed out waiting for components to stop")
		}
	}

	if ix.grpcServer != nil {
		ix.grpcServer.Stop()
	}
	for _, rt := range ix.networks {
		_ = rt.provider.Close()
	}

	// Close Redis
	if ix.redisClient != nil {
		if err := ix.redisClient.Close(); err != nil {
			ix.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Stop Health Server
	err := ix.healthServer.Stop(ctx)

	if ix.db != nil {
		if cerr := ix.db.Close(); cerr != nil {
			ix.log.Warn("Failed to close database", "error", cerr)
		}
	}
	return err
}

// Close releases connections of an Indexer that was never started.
func (ix *Indexer) Close() {
	for _, rt := range ix.networks {
		_ = rt.provider.Close()
	}
	if ix.redisClient != nil {
		_ = ix.redisClient.Close()
	}
	if ix.db != nil {
		_ = ix.db.Close()
	}
}
