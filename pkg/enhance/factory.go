package enhance

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/otherjamesbrown/penf-live/client"
	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the configured provider wrapped as Instrumented(Limited(provider)).
// The returned closer releases provider connections.
func New(ctx context.Context, cfg *config.EnhancementConfig, apiKey string, metrics *observability.LiveMetrics, logger logging.Logger) (Enhancer, io.Closer, error) {
	var (
		provider Enhancer
		closer   io.Closer = nopCloser{}
	)

	switch cfg.Provider {
	case config.ProviderNone, "":
		provider = NewLocalProvider()
	case config.ProviderHTTP:
		provider = NewHTTPProvider(cfg.BaseURL, apiKey, &http.Client{})
	case config.ProviderOpenAI:
		provider = NewOpenAIProvider(cfg.BaseURL, apiKey, cfg.Model)
	case config.ProviderGRPC:
		conn, err := client.ConnectFromConfig(ctx, cfg, apiKey)
		if err != nil {
			return nil, nil, err
		}
		provider = NewGRPCProvider(conn)
		closer = conn
	default:
		return nil, nil, fmt.Errorf("unknown enhancement provider %q", cfg.Provider)
	}

	limited := NewLimited(provider, cfg.RatePerSecond, cfg.Burst, cfg.Timeout)
	return NewInstrumented(limited, metrics, logger), closer, nil
}
