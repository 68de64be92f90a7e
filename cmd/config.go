package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/penf-live/config"
)

// NewConfigCommand creates the 'config' command group.
func NewConfigCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify the penf-live configuration file.`,
	}

	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigSetCommand(deps))
	return cmd
}

func newConfigShowCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after the config file, PENF_LIVE_* environment
variables and command-line flags have been applied. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.config()
			if err != nil {
				return err
			}

			shown := *cfg
			shown.Database.URL = config.RedactedURL(cfg.Database.URL)
			if shown.Events.Password != "" {
				shown.Events.Password = "****"
			}
			data, err := config.Marshal(&shown)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if path, err := config.ConfigPath(); err == nil {
				fmt.Fprintf(w, "# %s\n", path)
			}
			_, err = w.Write(data)
			return err
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			configPath, err := config.ConfigPath()
			if err != nil {
				return fmt.Errorf("getting config path: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil && !force {
				fmt.Fprintf(w, "Configuration file already exists: %s\n", configPath)
				fmt.Fprintln(w, "Use 'penf-live config show' to view current settings, or --force to overwrite.")
				return nil
			}

			defaults := config.DefaultConfig()
			if err := config.SaveConfig(defaults); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}

			fmt.Fprintf(w, "Created configuration file: %s\n", configPath)
			fmt.Fprintln(w, "\nDefault settings:")
			fmt.Fprintf(w, "  Provider:       %s\n", defaults.Enhancement.Provider)
			fmt.Fprintf(w, "  Debounce:       %s\n", defaults.Queue.Debounce)
			fmt.Fprintf(w, "  Max concurrent: %d\n", defaults.Queue.MaxConcurrent)
			fmt.Fprintf(w, "  Listen address: %s\n", defaults.Server.Addr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

func newConfigSetCommand(deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the config file.

Available keys:
  enhancement.provider   none, http, openai or grpc
  enhancement.base_url   Provider URL (http, openai) or host:port (grpc)
  enhancement.model      Chat model for the openai provider
  enhancement.timeout    Per-request timeout (e.g., 20s)
  queue.debounce         Quiet period before the queue drains (e.g., 2s)
  queue.max_concurrent   In-flight enhancement limit per session
  detection.context_words  Words kept on each side of a trigger
  database.url           Postgres URL; also enables the mirror
  database.connect_attempts  Connection attempts before giving up
  events.addr            Redis address; also enables event publishing
  server.addr            HTTP listen address
  output_format          text, json or yaml

Examples:
  penf-live config set enhancement.provider openai
  penf-live config set queue.debounce 1500ms`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				cfg = config.DefaultConfig()
			}
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.SaveConfig(cfg); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func setConfigValue(cfg *config.Config, key, value string) error {
	parseDuration := func() (time.Duration, error) {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %w", key, err)
		}
		return d, nil
	}
	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value: %w", key, err)
		}
		return n, nil
	}

	switch strings.ToLower(key) {
	case "enhancement.provider":
		cfg.Enhancement.Provider = value
	case "enhancement.base_url":
		cfg.Enhancement.BaseURL = value
	case "enhancement.model":
		cfg.Enhancement.Model = value
	case "enhancement.timeout":
		d, err := parseDuration()
		if err != nil {
			return err
		}
		cfg.Enhancement.Timeout = d
	case "queue.debounce":
		d, err := parseDuration()
		if err != nil {
			return err
		}
		cfg.Queue.Debounce = d
	case "queue.max_concurrent":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Queue.MaxConcurrent = n
	case "detection.context_words":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Detection.ContextWords = n
	case "database.url":
		cfg.Database.URL = value
		cfg.Database.Enabled = value != ""
	case "database.connect_attempts":
		n, err := parseInt()
		if err != nil {
			return err
		}
		cfg.Database.ConnectAttempts = n
	case "events.addr":
		cfg.Events.Addr = value
		cfg.Events.Enabled = value != ""
	case "server.addr":
		cfg.Server.Addr = value
	case "output_format":
		format := config.OutputFormat(value)
		if !format.IsValid() {
			return fmt.Errorf("invalid output format: %s (must be text, json, or yaml)", value)
		}
		cfg.OutputFormat = format
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
