// Package config provides configuration management for penf-live.
// It supports loading configuration from a YAML file, environment variables,
// and command-line flags, in that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Enhancement providers.
const (
	ProviderNone   = "none"
	ProviderHTTP   = "http"
	ProviderOpenAI = "openai"
	ProviderGRPC   = "grpc"
)

// Default configuration values.
const (
	DefaultConfigDir      = ".penf-live"
	DefaultConfigFile     = "config.yaml"
	DefaultCertDir        = ".config/penf-live/certs"
	DefaultOutputFormat   = OutputFormatText
	DefaultContextWords   = 8
	DefaultDebounce       = 2 * time.Second
	DefaultMaxConcurrent  = 3
	DefaultEnhanceTimeout = 20 * time.Second
	DefaultRatePerSecond  = 5.0
	DefaultBurst          = 3
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultServerAddr     = ":8085"
	DefaultRedisAddr      = "localhost:6379"
	DefaultChannelPrefix  = "penf-live"
)

// TLSConfig holds client TLS settings for the gRPC enhancement provider.
type TLSConfig struct {
	// Enabled indicates whether TLS should be used for connections.
	Enabled bool `yaml:"enabled"`

	// CACert is the path to the CA certificate for verifying the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// ClientCert is the path to the client certificate for mTLS authentication.
	ClientCert string `yaml:"client_cert,omitempty"`

	// ClientKey is the path to the client private key for mTLS authentication.
	ClientKey string `yaml:"client_key,omitempty"`

	// CertDir is a directory containing ca.crt, client.crt, and client.key files.
	CertDir string `yaml:"cert_dir,omitempty"`

	// SkipVerify disables server certificate verification (testing only).
	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// ResolvePaths expands ~ in paths and sets defaults from CertDir if configured.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
		return
	}
	c.CACert = expandPath(c.CACert)
	c.ClientCert = expandPath(c.ClientCert)
	c.ClientKey = expandPath(c.ClientKey)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DetectionConfig controls the phrase matcher.
type DetectionConfig struct {
	// ContextWords is how many words are kept on each side of a trigger.
	ContextWords int
}

// QueueConfig controls the debounced enhancement queue.
type QueueConfig struct {
	// Debounce is the quiet period after the last detection before draining.
	Debounce time.Duration

	// MaxConcurrent caps in-flight enhancement requests per session.
	MaxConcurrent int
}

// EnhancementConfig selects and tunes the enhancement provider.
type EnhancementConfig struct {
	// Provider is one of none, http, openai, grpc.
	Provider string

	// BaseURL is the hosted function URL (http), API base (openai) or
	// host:port (grpc).
	BaseURL string

	// Model is the chat model used by the openai provider.
	Model string

	// Timeout bounds a single enhancement request. Expiry counts as a failure.
	Timeout time.Duration

	// RatePerSecond and Burst configure the client-side token bucket.
	// RatePerSecond <= 0 disables limiting.
	RatePerSecond float64
	Burst         int

	// Insecure disables TLS for the grpc provider (development only).
	Insecure bool

	// TLS holds certificates for the grpc provider.
	TLS TLSConfig
}

// DatabaseConfig enables the optional Postgres mirror.
type DatabaseConfig struct {
	Enabled  bool
	URL      string
	MaxConns int32

	// ConnectAttempts is how many times startup tries to reach the database
	// before giving up.
	ConnectAttempts int
}

// EventsConfig enables redis item-event publishing.
type EventsConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string
	JSON  bool
}

// Config is the complete penf-live configuration.
type Config struct {
	Detection    DetectionConfig
	Queue        QueueConfig
	Enhancement  EnhancementConfig
	Database     DatabaseConfig
	Events       EventsConfig
	Server       ServerConfig
	Logging      LoggingConfig
	OutputFormat OutputFormat
}

// DefaultConfig returns a Config with default values. The default provider
// is "none", which keeps detection fully local until one is configured.
func DefaultConfig() *Config {
	return &Config{
		Detection: DetectionConfig{ContextWords: DefaultContextWords},
		Queue: QueueConfig{
			Debounce:      DefaultDebounce,
			MaxConcurrent: DefaultMaxConcurrent,
		},
		Enhancement: EnhancementConfig{
			Provider:      ProviderNone,
			Model:         DefaultOpenAIModel,
			Timeout:       DefaultEnhanceTimeout,
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultBurst,
		},
		Database: DatabaseConfig{MaxConns: 10, ConnectAttempts: 3},
		Events: EventsConfig{
			Addr:          DefaultRedisAddr,
			ChannelPrefix: DefaultChannelPrefix,
		},
		Server: ServerConfig{
			Addr:            DefaultServerAddr,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging:      LoggingConfig{Level: "info"},
		OutputFormat: DefaultOutputFormat,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $PENF_LIVE_CONFIG_DIR if set, otherwise ~/.penf-live
func ConfigDir() (string, error) {
	if dir := os.Getenv("PENF_LIVE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads configuration in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.penf-live/config.yaml or $PENF_LIVE_CONFIG_DIR/config.yaml)
// 3. PENF_LIVE_* environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom is LoadConfig with an explicit config file. An empty path
// uses ConfigPath. A named file that does not exist is an error; the
// default file is optional.
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := path
	if configPath == "" {
		var err error
		configPath, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
	} else if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// The file representation keeps durations as strings ("2s", "500ms").
type fileConfig struct {
	Detection struct {
		ContextWords *int `yaml:"context_words,omitempty"`
	} `yaml:"detection"`
	Queue struct {
		Debounce      string `yaml:"debounce,omitempty"`
		MaxConcurrent int    `yaml:"max_concurrent,omitempty"`
	} `yaml:"queue"`
	Enhancement struct {
		Provider      string    `yaml:"provider,omitempty"`
		BaseURL       string    `yaml:"base_url,omitempty"`
		Model         string    `yaml:"model,omitempty"`
		Timeout       string    `yaml:"timeout,omitempty"`
		RatePerSecond *float64  `yaml:"rate_per_second,omitempty"`
		Burst         int       `yaml:"burst,omitempty"`
		Insecure      bool      `yaml:"insecure,omitempty"`
		TLS           TLSConfig `yaml:"tls,omitempty"`
	} `yaml:"enhancement"`
	Database struct {
		Enabled         bool   `yaml:"enabled,omitempty"`
		URL             string `yaml:"url,omitempty"`
		MaxConns        int32  `yaml:"max_conns,omitempty"`
		ConnectAttempts int    `yaml:"connect_attempts,omitempty"`
	} `yaml:"database"`
	Events struct {
		Enabled       bool   `yaml:"enabled,omitempty"`
		Addr          string `yaml:"addr,omitempty"`
		Password      string `yaml:"password,omitempty"`
		DB            int    `yaml:"db,omitempty"`
		ChannelPrefix string `yaml:"channel_prefix,omitempty"`
	} `yaml:"events"`
	Server struct {
		Addr            string `yaml:"addr,omitempty"`
		ReadTimeout     string `yaml:"read_timeout,omitempty"`
		WriteTimeout    string `yaml:"write_timeout,omitempty"`
		ShutdownTimeout string `yaml:"shutdown_timeout,omitempty"`
	} `yaml:"server"`
	Logging struct {
		Level string `yaml:"level,omitempty"`
		JSON  bool   `yaml:"json,omitempty"`
	} `yaml:"logging"`
	OutputFormat OutputFormat `yaml:"output_format,omitempty"`
}

func parseDurationField(name, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = d
	return nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return applyYAML(cfg, data)
}

func applyYAML(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fc.Detection.ContextWords != nil {
		cfg.Detection.ContextWords = *fc.Detection.ContextWords
	}

	if err := parseDurationField("queue.debounce", fc.Queue.Debounce, &cfg.Queue.Debounce); err != nil {
		return err
	}
	if fc.Queue.MaxConcurrent != 0 {
		cfg.Queue.MaxConcurrent = fc.Queue.MaxConcurrent
	}

	e := fc.Enhancement
	if e.Provider != "" {
		cfg.Enhancement.Provider = e.Provider
	}
	if e.BaseURL != "" {
		cfg.Enhancement.BaseURL = e.BaseURL
	}
	if e.Model != "" {
		cfg.Enhancement.Model = e.Model
	}
	if err := parseDurationField("enhancement.timeout", e.Timeout, &cfg.Enhancement.Timeout); err != nil {
		return err
	}
	if e.RatePerSecond != nil {
		cfg.Enhancement.RatePerSecond = *e.RatePerSecond
	}
	if e.Burst != 0 {
		cfg.Enhancement.Burst = e.Burst
	}
	cfg.Enhancement.Insecure = e.Insecure
	cfg.Enhancement.TLS = e.TLS

	cfg.Database.Enabled = fc.Database.Enabled
	if fc.Database.URL != "" {
		cfg.Database.URL = fc.Database.URL
	}
	if fc.Database.MaxConns != 0 {
		cfg.Database.MaxConns = fc.Database.MaxConns
	}
	if fc.Database.ConnectAttempts != 0 {
		cfg.Database.ConnectAttempts = fc.Database.ConnectAttempts
	}

	cfg.Events.Enabled = fc.Events.Enabled
	if fc.Events.Addr != "" {
		cfg.Events.Addr = fc.Events.Addr
	}
	if fc.Events.Password != "" {
		cfg.Events.Password = fc.Events.Password
	}
	if fc.Events.DB != 0 {
		cfg.Events.DB = fc.Events.DB
	}
	if fc.Events.ChannelPrefix != "" {
		cfg.Events.ChannelPrefix = fc.Events.ChannelPrefix
	}

	if fc.Server.Addr != "" {
		cfg.Server.Addr = fc.Server.Addr
	}
	if err := parseDurationField("server.read_timeout", fc.Server.ReadTimeout, &cfg.Server.ReadTimeout); err != nil {
		return err
	}
	if err := parseDurationField("server.write_timeout", fc.Server.WriteTimeout, &cfg.Server.WriteTimeout); err != nil {
		return err
	}
	if err := parseDurationField("server.shutdown_timeout", fc.Server.ShutdownTimeout, &cfg.Server.ShutdownTimeout); err != nil {
		return err
	}

	if fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
	cfg.Logging.JSON = fc.Logging.JSON

	if fc.OutputFormat != "" {
		cfg.OutputFormat = fc.OutputFormat
	}

	return nil
}

func envBool(name string) bool {
	v := os.Getenv(name)
	return v == "true" || v == "1"
}

// loadFromEnv overlays PENF_LIVE_* environment variables onto the configuration.
// Unparseable numeric or duration values are ignored.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("PENF_LIVE_CONTEXT_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detection.ContextWords = n
		}
	}

	if v := os.Getenv("PENF_LIVE_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Queue.Debounce = d
		}
	}
	if v := os.Getenv("PENF_LIVE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxConcurrent = n
		}
	}

	if v := os.Getenv("PENF_LIVE_ENHANCE_PROVIDER"); v != "" {
		cfg.Enhancement.Provider = v
	}
	if v := os.Getenv("PENF_LIVE_ENHANCE_URL"); v != "" {
		cfg.Enhancement.BaseURL = v
	}
	if v := os.Getenv("PENF_LIVE_ENHANCE_MODEL"); v != "" {
		cfg.Enhancement.Model = v
	}
	if v := os.Getenv("PENF_LIVE_ENHANCE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Enhancement.Timeout = d
		}
	}
	if v := os.Getenv("PENF_LIVE_ENHANCE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Enhancement.RatePerSecond = f
		}
	}
	if envBool("PENF_LIVE_ENHANCE_INSECURE") {
		cfg.Enhancement.Insecure = true
	}
	if envBool("PENF_LIVE_TLS_ENABLED") {
		cfg.Enhancement.TLS.Enabled = true
	}
	if v := os.Getenv("PENF_LIVE_TLS_CERT_DIR"); v != "" {
		cfg.Enhancement.TLS.CertDir = v
	}

	if v := os.Getenv("PENF_LIVE_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Enabled = true
	}

	if v := os.Getenv("PENF_LIVE_REDIS_ADDR"); v != "" {
		cfg.Events.Addr = v
		cfg.Events.Enabled = true
	}
	if v := os.Getenv("PENF_LIVE_REDIS_PASSWORD"); v != "" {
		cfg.Events.Password = v
	}

	if v := os.Getenv("PENF_LIVE_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	if v := os.Getenv("PENF_LIVE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if envBool("PENF_LIVE_LOG_JSON") {
		cfg.Logging.JSON = true
	}

	if v := os.Getenv("PENF_LIVE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Detection.ContextWords < 0 {
		return fmt.Errorf("detection.context_words must not be negative")
	}
	if c.Queue.Debounce < 0 {
		return fmt.Errorf("queue.debounce must not be negative")
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("queue.max_concurrent must be positive")
	}
	if c.Enhancement.Timeout <= 0 {
		return fmt.Errorf("enhancement.timeout must be positive")
	}

	switch c.Enhancement.Provider {
	case ProviderNone, ProviderOpenAI:
	case ProviderHTTP, ProviderGRPC:
		if c.Enhancement.BaseURL == "" {
			return fmt.Errorf("enhancement.base_url is required for provider %q", c.Enhancement.Provider)
		}
	default:
		return fmt.Errorf("invalid enhancement.provider: %q (must be none, http, openai, or grpc)", c.Enhancement.Provider)
	}
	if c.Enhancement.Provider == ProviderOpenAI && c.Enhancement.Model == "" {
		return fmt.Errorf("enhancement.model is required for provider %q", ProviderOpenAI)
	}

	if c.Database.Enabled && c.Database.URL == "" {
		return fmt.Errorf("database.url is required when the database is enabled")
	}
	if c.Events.Enabled && c.Events.Addr == "" {
		return fmt.Errorf("events.addr is required when events are enabled")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// Marshal renders the configuration in its file representation.
func Marshal(cfg *Config) ([]byte, error) {
	var fc fileConfig
	contextWords := cfg.Detection.ContextWords
	fc.Detection.ContextWords = &contextWords
	fc.Queue.Debounce = cfg.Queue.Debounce.String()
	fc.Queue.MaxConcurrent = cfg.Queue.MaxConcurrent

	rate := cfg.Enhancement.RatePerSecond
	fc.Enhancement.Provider = cfg.Enhancement.Provider
	fc.Enhancement.BaseURL = cfg.Enhancement.BaseURL
	fc.Enhancement.Model = cfg.Enhancement.Model
	fc.Enhancement.Timeout = cfg.Enhancement.Timeout.String()
	fc.Enhancement.RatePerSecond = &rate
	fc.Enhancement.Burst = cfg.Enhancement.Burst
	fc.Enhancement.Insecure = cfg.Enhancement.Insecure
	fc.Enhancement.TLS = cfg.Enhancement.TLS

	fc.Database.Enabled = cfg.Database.Enabled
	fc.Database.URL = cfg.Database.URL
	fc.Database.MaxConns = cfg.Database.MaxConns
	fc.Database.ConnectAttempts = cfg.Database.ConnectAttempts

	fc.Events.Enabled = cfg.Events.Enabled
	fc.Events.Addr = cfg.Events.Addr
	fc.Events.Password = cfg.Events.Password
	fc.Events.DB = cfg.Events.DB
	fc.Events.ChannelPrefix = cfg.Events.ChannelPrefix

	fc.Server.Addr = cfg.Server.Addr
	fc.Server.ReadTimeout = cfg.Server.ReadTimeout.String()
	fc.Server.WriteTimeout = cfg.Server.WriteTimeout.String()
	fc.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout.String()

	fc.Logging.Level = cfg.Logging.Level
	fc.Logging.JSON = cfg.Logging.JSON
	fc.OutputFormat = cfg.OutputFormat

	data, err := yaml.Marshal(&fc)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// SaveConfig writes the configuration to the config file with 0600 permissions.
func SaveConfig(cfg *Config) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// RedactedURL hides credentials embedded in a connection URL for display.
func RedactedURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		return raw[:scheme+3] + userinfo[:i] + ":****" + raw[at:]
	}
	return raw
}
