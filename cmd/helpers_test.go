package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/credentials"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

const testKeyEnv = "PENF_LIVE_TEST_ENCRYPTION_KEY"

var errNoTestDB = errors.New("no database in tests")

// testConfig returns defaults tuned for fast offline sessions.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Queue.Debounce = 10 * time.Millisecond
	cfg.Enhancement.Provider = config.ProviderNone
	return cfg
}

// testDeps returns dependencies that never touch the user's config,
// keyring or database. Credentials live in a per-test directory.
func testDeps(t *testing.T, cfg *config.Config) *Deps {
	t.Helper()
	t.Setenv(credentials.APIKeyEnv, "")
	t.Setenv(testKeyEnv, strings.Repeat("ab", 32))
	dir := t.TempDir()

	return &Deps{
		Config: cfg,
		Logger: logging.NewNopLogger(),
		LoadConfig: func() (*config.Config, error) {
			return cfg, nil
		},
		ConnectToDB: func(context.Context, *config.Config) (*pgxpool.Pool, error) {
			return nil, errNoTestDB
		},
		NewCredentialStore: func() (*credentials.Store, error) {
			return credentials.NewStoreAt(dir, credentials.NewEnvKeyProvider(testKeyEnv))
		},
	}
}
