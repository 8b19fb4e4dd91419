package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/Strob0t/Weaver/internal/adapter/docker"
	"github.com/Strob0t/Weaver/internal/adapter/logfile"
	cfnats "github.com/Strob0t/Weaver/internal/adapter/nats"
	"github.com/Strob0t/Weaver/internal/adapter/natskv"
	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/adapter/postgres"
	"github.com/Strob0t/Weaver/internal/adapter/ristretto"
	"github.com/Strob0t/Weaver/internal/adapter/tiered"
	"github.com/Strob0t/Weaver/internal/adapter/ws"
	"github.com/Strob0t/Weaver/internal/config"
	"github.com/Strob0t/Weaver/internal/domain/provider"
	"github.com/Strob0t/Weaver/internal/port/cache"
	"github.com/Strob0t/Weaver/internal/port/database"
	"github.com/Strob0t/Weaver/internal/port/messagequeue"
	"github.com/Strob0t/Weaver/internal/resilience"
	"github.com/Strob0t/Weaver/internal/service"
	"github.com/Strob0t/Weaver/internal/worker"
)

// app holds the wired components shared by the server and the admin commands.
type app struct {
	cfg         *config.Config
	store       *postgres.Store
	driver      *docker.Driver
	queue       *cfnats.Queue // nil when NATS is disabled
	hub         *ws.Hub
	workers     *worker.Pool
	initializer *service.Initializer
	sessions    *service.SessionService
	runtime     *service.RuntimeService
	providers   *service.ProviderService
	cleanup     *service.CleanupScheduler

	closers []func()
}

// newApp connects to the infrastructure and builds the service graph.
// metrics may be nil.
func newApp(ctx context.Context, cfg *config.Config, metrics *cfotel.Metrics) (*app, error) {
	a := &app{cfg: cfg}

	// --- Infrastructure ---

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	a.store = postgres.NewStore(pool)
	slog.Info("postgres connected")

	var logs database.SessionLogStore = a.store
	if cfg.SessionLogs.Backend == "file" {
		logs = logfile.NewStore(cfg.SessionLogs.BasePath)
		slog.Info("session logs on filesystem", "path", cfg.SessionLogs.BasePath)
	}

	cipher, err := provider.NewTokenCipher(cfg.Crypto.Key)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("token cipher: %w", err)
	}

	a.driver = docker.NewDriver(docker.ExecRunner{}, cfg.Container, cfg.Workspace, cfg.VSCode)
	a.hub = ws.NewHub(originHost(cfg.Server.CORSOrigin))
	a.closers = append(a.closers, a.hub.Close)

	var mq messagequeue.Queue
	if cfg.NATS.Enabled {
		q, err := cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("nats: %w", err)
		}
		a.queue = q
		mq = q
		a.closers = append(a.closers, func() {
			if err := q.Drain(); err != nil {
				slog.Warn("nats drain failed", "error", err)
			}
		})
	}

	// --- Repository cache ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("l1 cache: %w", err)
	}
	a.closers = append(a.closers, l1.Close)

	var l2 cache.Cache
	if a.queue != nil && cfg.Cache.L2Bucket != "" {
		kv, err := a.queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.TTL)
		if err != nil {
			slog.Warn("l2 cache unavailable, using l1 only", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			l2 = natskv.New(kv)
		}
	}
	repoCache := tiered.New(l1, l2, cfg.Cache.TTL)

	// --- Services ---

	events := service.NewEventPublisher(mq, a.hub)
	locks := service.NewLockManager()
	limiter := service.NewRateLimiter(cfg.RateLimit)
	a.workers = worker.NewPool(cfg.Executor)

	a.initializer = service.NewInitializer(a.store, logs, a.store, cipher, a.driver, locks, a.workers, events)
	a.sessions = service.NewSessionService(a.store, logs, a.store, a.store, a.driver, a.initializer, limiter, events, cfg.VSCode.BaseURL)
	a.runtime = service.NewRuntimeService(a.store, logs, a.store, cipher, a.driver, locks, limiter, events, cfg.VSCode.BaseURL)
	a.providers = service.NewProviderService(
		a.store,
		cipher,
		resilience.NewGroup(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout),
		repoCache,
		cfg.Cache.TTL,
		cfg.Providers.Timeout,
	)
	a.cleanup = service.NewCleanupScheduler(cfg.Cleanup, cfg.SessionLogs, a.store, logs, a.driver, limiter)

	if metrics != nil {
		a.initializer.SetMetrics(metrics)
		a.sessions.SetMetrics(metrics)
		a.runtime.SetMetrics(metrics)
		a.cleanup.SetMetrics(metrics)
	}
	return a, nil
}

// Close releases infrastructure in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// originHost extracts host[:port] from the configured CORS origin for the
// WebSocket origin check. An unparseable or empty origin disables the check.
func originHost(origin string) string {
	if origin == "" || origin == "*" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Host
}
