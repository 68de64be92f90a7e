// Package main provides the penf-live CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/cmd"
	"github.com/otherjamesbrown/penf-live/config"
	"github.com/otherjamesbrown/penf-live/pkg/buildinfo"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

// serviceName identifies this binary in logs and version output.
const serviceName = "penf-live"

// Global flags.
var (
	cfgFile      string
	outputFormat string
	debug        bool
	provider     string
)

// deps is shared by every subcommand. PersistentPreRunE fills in the loaded
// configuration and logger.
var deps = cmd.DefaultDeps()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "penf-live",
	Short: "Live meeting phrase detection",
	Long: `penf-live spots action items, decisions, deferrals, risks and follow-ups in
a meeting transcript while the meeting is still going.

Every finalized utterance is matched locally and the matches appear at once.
After a short quiet period (2s by default) the new items are sent to an
enhancement provider, at most three at a time, which rewrites each into a
clean task with an owner, priority and due date. Items can be confirmed,
dismissed, edited or removed at any point; user edits are never overwritten
by a late enhancement.

COMMON WORKFLOWS:
  Try the matcher:       penf-live detect "I'll send the deck by Friday"
  Process a recording:   penf-live replay standup.vtt
  Follow a live capture: penf-live watch ~/recordings/current.txt
  Serve capture clients: penf-live serve

CONFIGURATION:
  ~/.penf-live/config.yaml (penf-live config init), PENF_LIVE_* environment
  variables, then flags. The enhancement API key is managed with
  'penf-live auth'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			return nil
		}

		deps.LoadConfig = func() (*config.Config, error) {
			return config.LoadConfigFrom(cfgFile)
		}
		cfg, err := deps.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}
		if provider != "" {
			cfg.Enhancement.Provider = provider
		}
		if debug {
			cfg.Logging.Level = string(logging.LevelDebug)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating flags: %w", err)
		}

		logger := logging.NewLogger(&logging.Config{
			Level:       logging.ParseLevel(cfg.Logging.Level),
			ServiceName: serviceName,
			Environment: envOrDefault("PENF_LIVE_ENV", "development"),
			JSONFormat:  cfg.Logging.JSON,
			Output:      os.Stderr,
		})
		logging.SetGlobal(logger)

		deps.Config = cfg
		deps.Logger = logger
		return nil
	},
}

// Version command flags.
var (
	versionServer     string
	versionOutputJSON bool
)

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of penf-live.

Use --server to also ask a running 'penf-live serve' for its version.

Examples:
  penf-live version
  penf-live version --output json
  penf-live version --server http://localhost:8085`,
	RunE: func(c *cobra.Command, args []string) error {
		w := c.OutOrStdout()
		infos := []buildinfo.Info{buildinfo.Get(serviceName)}

		if versionServer != "" {
			remote, err := fetchServerVersion(c.Context(), versionServer)
			if err != nil {
				return err
			}
			infos = append(infos, *remote)
		}

		if versionOutputJSON || outputFormat == string(config.OutputFormatJSON) {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if len(infos) == 1 {
				return enc.Encode(infos[0])
			}
			return enc.Encode(infos)
		}

		for i, info := range infos {
			name := info.ServiceName
			if i > 0 {
				name = "server " + name
			}
			fmt.Fprintf(w, "%s version %s\n", name, info.Version)
			fmt.Fprintf(w, "  commit: %s\n", info.Commit)
			fmt.Fprintf(w, "  built:  %s\n", info.BuildTime)
			fmt.Fprintf(w, "  go:     %s\n", info.GoVersion)
		}
		return nil
	},
}

// fetchServerVersion reads /version from a running server.
func fetchServerVersion(ctx context.Context, base string) (*buildinfo.Info, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(base, "/") + "/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building version request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying server version: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("server version: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var info buildinfo.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding server version: %w", err)
	}
	return &info, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.penf-live/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "enhancement provider: none, http, openai, grpc")

	// Detection commands.
	rootCmd.AddCommand(cmd.NewDetectCommand(deps))
	rootCmd.AddCommand(cmd.NewReplayCommand(deps))
	rootCmd.AddCommand(cmd.NewWatchCommand(deps))

	// Server and mirror commands.
	rootCmd.AddCommand(cmd.NewServeCommand(deps))
	rootCmd.AddCommand(cmd.NewSessionsCommand(deps))
	rootCmd.AddCommand(cmd.NewItemsCommand(deps))
	rootCmd.AddCommand(cmd.NewDbCommand(deps))

	// Setup commands.
	rootCmd.AddCommand(cmd.NewAuthCommand(deps))
	rootCmd.AddCommand(cmd.NewConfigCommand(deps))

	versionCmd.Flags().StringVar(&versionServer, "server", "", "also query the version of a running server at this URL")
	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "output as JSON")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Cancel the command context on interrupt so serve and watch shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
