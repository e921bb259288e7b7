// Package config loads the gateway configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as Go duration
// strings ("5s", "250ms").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the gateway process.
type Config struct {
	Server   Server   `yaml:"server"`
	Upstream Upstream `yaml:"upstream"`
	Stream   Stream   `yaml:"stream"`
	Storage  Storage  `yaml:"storage"`
	Limits   Limits   `yaml:"limits"`
	Logging  Logging  `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Upstream holds the brokerage session identity, credentials, and the
// lifecycle timeouts. Timeouts are configuration, not constants.
type Upstream struct {
	Provider string `yaml:"provider"` // "alpaca" or "sim"

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID int    `yaml:"client_id"`

	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"` // market-data feed, e.g. "iex" or "sip"

	ConnectTimeout Duration `yaml:"connect_timeout"` // primary connect bound
	SettleWait     Duration `yaml:"settle_wait"`     // snapshot settle interval
}

// Stream configures the downstream WebSocket fan-out.
type Stream struct {
	BroadcastInterval Duration `yaml:"broadcast_interval"`
	SendBuffer        int      `yaml:"send_buffer"`  // per-socket outbound queue
	EventBuffer       int      `yaml:"event_buffer"` // per-listener order-event queue
}

// Storage holds paths for the order journal and the bar cache.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Limits throttles outbound upstream requests.
type Limits struct {
	RequestsPerMin int `yaml:"requests_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, applies defaults
// for unset fields, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// Default returns a configuration with all defaults and env overrides applied,
// for running without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Upstream.Provider == "" {
		cfg.Upstream.Provider = "alpaca"
	}
	if cfg.Upstream.Host == "" {
		cfg.Upstream.Host = "127.0.0.1"
	}
	if cfg.Upstream.Port == 0 {
		cfg.Upstream.Port = 4002
	}
	if cfg.Upstream.ClientID == 0 {
		cfg.Upstream.ClientID = 17
	}
	if cfg.Upstream.Feed == "" {
		cfg.Upstream.Feed = "iex"
	}
	if cfg.Upstream.ConnectTimeout == 0 {
		cfg.Upstream.ConnectTimeout = Duration(5 * time.Second)
	}
	if cfg.Upstream.SettleWait == 0 {
		cfg.Upstream.SettleWait = Duration(2 * time.Second)
	}
	if cfg.Stream.BroadcastInterval == 0 {
		cfg.Stream.BroadcastInterval = Duration(250 * time.Millisecond)
	}
	if cfg.Stream.SendBuffer == 0 {
		cfg.Stream.SendBuffer = 64
	}
	if cfg.Stream.EventBuffer == 0 {
		cfg.Stream.EventBuffer = 64
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/tradegate.db"
	}
	if cfg.Limits.RequestsPerMin == 0 {
		cfg.Limits.RequestsPerMin = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPSTREAM_HOST"); v != "" {
		cfg.Upstream.Host = v
	}
	if v := os.Getenv("UPSTREAM_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.Port = n
		}
	}
	if v := os.Getenv("UPSTREAM_CLIENT_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upstream.ClientID = n
		}
	}
	if v := os.Getenv("UPSTREAM_PROVIDER"); v != "" {
		cfg.Upstream.Provider = v
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Upstream.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Upstream.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority — canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Upstream.APISecret = v
	}
}
