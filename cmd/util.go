// Package cmd provides CLI commands for the penf-live tool.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/credentials"
	"github.com/otherjamesbrown/penf-live/pkg/db"
	"github.com/otherjamesbrown/penf-live/pkg/enhance"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// Deps holds the dependencies shared by commands. The root command fills
// Config and Logger before a subcommand runs; commands built on their own
// (as in tests) fall back to LoadConfig and the global logger.
type Deps struct {
	Config *config.Config
	Logger logging.Logger

	LoadConfig         func() (*config.Config, error)
	ConnectToDB        func(context.Context, *config.Config) (*pgxpool.Pool, error)
	NewCredentialStore func() (*credentials.Store, error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		LoadConfig:         config.LoadConfig,
		ConnectToDB:        connectToDatabase,
		NewCredentialStore: credentials.NewStore,
	}
}

func (d *Deps) config() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *Deps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.Default()
	}
	return d.Logger
}

// connectToDatabase opens the mirror database pool.
func connectToDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, db.FromSettings(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// apiKey returns the enhancement API key. A keyring that cannot be opened
// only matters when no key is set in the environment.
func (d *Deps) apiKey() (string, error) {
	if key := os.Getenv(credentials.APIKeyEnv); key != "" {
		return key, nil
	}
	store, err := d.NewCredentialStore()
	if err != nil {
		d.logger().Debug("Credential store unavailable", logging.Err(err))
		return "", nil
	}
	return credentials.ActiveAPIKey(store)
}

// newEnhancer builds the configured provider.
func (d *Deps) newEnhancer(ctx context.Context, cfg *config.Config, metrics *observability.LiveMetrics) (enhance.Enhancer, io.Closer, error) {
	var key string
	if cfg.Enhancement.Provider != config.ProviderNone && cfg.Enhancement.Provider != "" {
		var err error
		if key, err = d.apiKey(); err != nil {
			return nil, nil, fmt.Errorf("reading API key: %w", err)
		}
	}
	return enhance.New(ctx, &cfg.Enhancement, key, metrics, d.logger())
}

// newMatcher builds the matcher for the configured context window.
func newMatcher(cfg *config.Config) (*phrases.Matcher, error) {
	m, err := phrases.NewMatcher(phrases.WithContextWords(cfg.Detection.ContextWords))
	if err != nil {
		return nil, fmt.Errorf("building matcher: %w", err)
	}
	return m, nil
}

// sessionOptions returns live options for cfg. The caller sets Enhancer.
func sessionOptions(cfg *config.Config, matcher *phrases.Matcher, logger logging.Logger, metrics *observability.LiveMetrics) live.Options {
	return live.Options{
		Matcher:       matcher,
		Debounce:      cfg.Queue.Debounce,
		MaxConcurrent: cfg.Queue.MaxConcurrent,
		Logger:        logger,
		Metrics:       metrics,
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputYAML writes v as YAML.
func outputYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// output writes v in format, calling text for the human-readable form.
func output(w io.Writer, format config.OutputFormat, v interface{}, text func(io.Writer) error) error {
	switch format {
	case config.OutputFormatJSON:
		return outputJSON(w, v)
	case config.OutputFormatYAML:
		return outputYAML(w, v)
	default:
		return text(w)
	}
}

// formatOffset renders a transcript offset in milliseconds as MM:SS.
func formatOffset(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	if total >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// formatAge renders how long ago t was.
func formatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// errNoDatabase is returned by commands that read the mirror when it is
// not configured.
var errNoDatabase = errors.New("database mirror is not enabled (set database.enabled or PENF_LIVE_DATABASE_URL)")
