package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/Weaver/internal/adapter/http"
	cfotel "github.com/Strob0t/Weaver/internal/adapter/otel"
	"github.com/Strob0t/Weaver/internal/adapter/postgres"
	"github.com/Strob0t/Weaver/internal/config"
	"github.com/Strob0t/Weaver/internal/logger"
	"github.com/Strob0t/Weaver/internal/middleware"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, closer := logger.New(cfg.Logging)
	slog.SetDefault(log)

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		err = runAdmin(cfg, os.Args[2:])
	} else {
		err = run(cfg)
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		closer.Close()
		os.Exit(1)
	}
	closer.Close()
}

func run(cfg *config.Config) error {
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"nats_enabled", cfg.NATS.Enabled,
		"vscode_enabled", cfg.VSCode.Enabled,
		"session_logs", cfg.SessionLogs.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otelShutdown, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("database migrations applied")

	a, err := newApp(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer a.Close()

	if res := a.driver.Preflight(ctx); !res.OK() {
		slog.Warn("container engine not reachable, sessions will fail to initialize",
			"engine", cfg.Container.Engine, "stderr", strings.TrimSpace(res.Stderr))
	} else {
		slog.Info("container engine ready", "engine", cfg.Container.Engine, "version", strings.TrimSpace(res.Stdout))
	}

	if n, err := a.initializer.RecoverInterrupted(ctx); err != nil {
		slog.Error("recover interrupted sessions", "error", err)
	} else if n > 0 {
		slog.Warn("failed sessions interrupted by restart", "count", n)
	}

	// --- HTTP ---

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	if cfg.OTEL.Enabled {
		r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	}

	cfhttp.MountRoutes(r, &cfhttp.Handlers{
		Sessions:  a.sessions,
		Runtime:   a.runtime,
		Providers: a.providers,
		WS:        http.HandlerFunc(a.hub.HandleWS),
	})

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // git pull/checkout run inline
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.cleanup.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		return runShutdown(shutdownTimeout,
			shutdownPhase{"http", srv.Shutdown},
			shutdownPhase{"worker pool", a.workers.Shutdown},
			shutdownPhase{"containers", func(ctx context.Context) error {
				a.initializer.Shutdown(ctx)
				return nil
			}},
		)
	})

	return g.Wait()
}
