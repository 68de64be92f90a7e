package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/events"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/storage"
)

// localSession is a session run inside the CLI process together with the
// side channels the configuration enables.
type localSession struct {
	*live.Session

	enhancerCloser io.Closer
	pool           *pgxpool.Pool
	repo           *storage.Repository
	mirror         *live.Mirror
	publisher      *events.Publisher
	logger         logging.Logger
}

// openLocalSession starts a session titled title. The mirror is attached
// when the database is enabled and events are published when redis is
// enabled; either failing to connect is an error.
func openLocalSession(ctx context.Context, deps *Deps, cfg *config.Config, title string) (*localSession, error) {
	logger := deps.logger()
	metrics := observability.NewLiveMetrics(prometheus.NewRegistry())

	matcher, err := newMatcher(cfg)
	if err != nil {
		return nil, err
	}
	enh, closer, err := deps.newEnhancer(ctx, cfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("creating enhancer: %w", err)
	}

	opts := sessionOptions(cfg, matcher, logger, metrics)
	opts.Enhancer = enh
	opts.Title = title

	ls := &localSession{
		Session:        live.NewSession(opts),
		enhancerCloser: closer,
		logger:         logger,
	}

	if cfg.Database.Enabled {
		pool, err := deps.ConnectToDB(ctx, cfg)
		if err != nil {
			ls.Close()
			return nil, err
		}
		ls.pool = pool
		repo := storage.NewRepository(pool, logger)
		if err := repo.SaveSession(ctx, ls.Info()); err != nil {
			ls.Close()
			return nil, fmt.Errorf("recording session: %w", err)
		}
		ls.repo = repo
		ls.mirror = live.AttachMirror(ls.Session, repo, logger, metrics)
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisherFromConfig(events.PublisherConfig{
			Addr:          cfg.Events.Addr,
			Password:      cfg.Events.Password,
			DB:            cfg.Events.DB,
			ChannelPrefix: cfg.Events.ChannelPrefix,
		}, logger, metrics)
		if err != nil {
			ls.Close()
			return nil, err
		}
		ls.publisher = pub
		ls.Subscribe(pub)
	}

	logger.Debug("Session started",
		logging.F("session_id", ls.ID()),
		logging.F("provider", cfg.Enhancement.Provider),
		logging.F("mirror", ls.mirror != nil),
		logging.F("events", ls.publisher != nil))
	return ls, nil
}

// finish flushes the queue and waits for outstanding enhancements.
func (ls *localSession) finish(ctx context.Context) error {
	ls.Flush()
	return ls.WaitIdle(ctx)
}

// Close stops the session and releases its side channels after pending
// mirror writes land.
func (ls *localSession) Close() {
	ls.Session.Close()
	if ls.mirror != nil {
		ls.mirror.Close()
	}
	if ls.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ls.repo.CloseSession(ctx, ls.ID(), time.Now()); err != nil {
			ls.logger.Warn("Recording session close", logging.Err(err))
		}
		cancel()
	}
	if ls.publisher != nil {
		if err := ls.publisher.Close(); err != nil {
			ls.logger.Warn("Closing event publisher", logging.Err(err))
		}
	}
	if ls.pool != nil {
		ls.pool.Close()
	}
	if ls.enhancerCloser != nil {
		if err := ls.enhancerCloser.Close(); err != nil {
			ls.logger.Warn("Closing enhancer", logging.Err(err))
		}
	}
}
