package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/api"
	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/events"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/storage"
)

// NewServeCommand creates the 'serve' command.
func NewServeCommand(deps *Deps) *cobra.Command {
	var (
		addr    string
		tracing bool
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the live session HTTP API",
		Long: `Serve live sessions over HTTP for a capture client or display layer.

A client creates a session per recording, posts finalized transcript segments
to it, and reads the reconciled items back (or streams changes over
server-sent events). Item actions (confirm, dismiss, edit, remove, retry) are
posted to the same API.

When database.enabled is set every session is mirrored to Postgres and
pending migrations are applied at startup. When events.enabled is set item
events are published to redis channels named <prefix>:sessions:<id>.

Endpoints:
  POST   /v1/sessions                          Create a session
  POST   /v1/sessions/:id/segments             Add a transcript segment
  GET    /v1/sessions/:id/items                List items (?all, ?category, ?status)
  GET    /v1/sessions/:id/items/grouped        Items grouped by category
  GET    /v1/sessions/:id/events               Server-sent event stream
  POST   /v1/detect                            Stateless detection
  GET    /healthz, /version, /metrics

Examples:
  penf-live serve
  penf-live serve --addr :9000 --tracing
  PENF_LIVE_DATABASE_URL=postgres://... penf-live serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := deps.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return runServe(ctx, deps, cfg, tracing, migrate)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, "+config.DefaultServerAddr+")")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "Enable OpenTelemetry HTTP instrumentation")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending mirror migrations at startup")

	return cmd
}

func runServe(ctx context.Context, deps *Deps, cfg *config.Config, tracing, migrate bool) error {
	logger := deps.logger()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewLiveMetrics(registry)

	matcher, err := newMatcher(cfg)
	if err != nil {
		return err
	}
	enh, closer, err := deps.newEnhancer(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("creating enhancer: %w", err)
	}
	defer closer.Close()

	opts := sessionOptions(cfg, matcher, logger, metrics)
	opts.Enhancer = enh
	manager := live.NewManager(opts)

	var health api.HealthFunc
	if cfg.Database.Enabled {
		pool, err := deps.ConnectToDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if migrate {
			result, err := db.RunMigrations(ctx, pool, storage.Migrations())
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			if len(result.Applied) > 0 {
				logger.Info("Applied migrations", logging.F("versions", result.Applied))
			}
		}
		if _, err := db.RegisterPoolStats(registry, pool, "penf_live"); err != nil {
			return fmt.Errorf("registering pool metrics: %w", err)
		}

		attachMirrors(ctx, manager, storage.NewRepository(pool, logger), logger, metrics)
		health = func(ctx context.Context) *db.HealthStatus { return db.Check(ctx, pool) }
		logger.Info("Database mirror enabled")
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisherFromConfig(events.PublisherConfig{
			Addr:          cfg.Events.Addr,
			Password:      cfg.Events.Password,
			DB:            cfg.Events.DB,
			ChannelPrefix: cfg.Events.ChannelPrefix,
		}, logger, metrics)
		if err != nil {
			return err
		}
		defer pub.Close()
		manager.OnCreate(func(s *live.Session) { s.Subscribe(pub) })
		logger.Info("Event publishing enabled", logging.F("redis_addr", cfg.Events.Addr))
	}

	if logging.ParseLevel(cfg.Logging.Level) != logging.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	router, srv := api.NewRouter(api.Config{
		Manager:  manager,
		Matcher:  matcher,
		Gatherer: registry,
		Health:   health,
		Tracing:  tracing,
		Logger:   logger,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting",
			logging.F("addr", cfg.Server.Addr),
			logging.F("provider", cfg.Enhancement.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			manager.CloseAll()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Event streams never finish on their own, so end them before draining.
	srv.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", logging.Err(err))
	}
	manager.CloseAll()
	logger.Info("Shutdown complete")
	return nil
}

// sessionStore is the mirror's view of storage.Repository.
type sessionStore interface {
	live.Store
	SaveSession(ctx context.Context, info live.Info) error
	CloseSession(ctx context.Context, id string, at time.Time) error
}

// attachMirrors records every session the manager creates and mirrors its
// items to repo until it is closed.
func attachMirrors(ctx context.Context, manager *live.Manager, repo sessionStore, logger logging.Logger, metrics *observability.LiveMetrics) {
	var (
		mu      sync.Mutex
		mirrors = make(map[string]*live.Mirror)
	)

	manager.OnCreate(func(s *live.Session) {
		saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := repo.SaveSession(saveCtx, s.Info()); err != nil {
			logger.Warn("Recording session", logging.F("session_id", s.ID()), logging.Err(err))
		}

		m := live.AttachMirror(s, repo, logger, metrics)
		mu.Lock()
		mirrors[s.ID()] = m
		mu.Unlock()
	})

	manager.OnClose(func(s *live.Session) {
		mu.Lock()
		m := mirrors[s.ID()]
		delete(mirrors, s.ID())
		mu.Unlock()
		if m != nil {
			m.Close()
		}

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := repo.CloseSession(closeCtx, s.ID(), time.Now()); err != nil {
			logger.Warn("Recording session close", logging.F("session_id", s.ID()), logging.Err(err))
		}
	})
}
