// Package config holds the application configuration, loaded through viper
// from a YAML file and UPLIFT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggerConfig holds settings for the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how the tool reaches Chrome.
type BrowserConfig struct {
	// RemoteURL attaches to an already-running browser's DevTools endpoint.
	// Empty launches a local instance instead.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	Headless  bool   `mapstructure:"headless" yaml:"headless"`
	// TargetURL is the page to navigate to after attach.
	TargetURL string `mapstructure:"target_url" yaml:"target_url"`
}

// EngineConfig tunes the injection engine.
type EngineConfig struct {
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PostClearDelay    time.Duration `mapstructure:"post_clear_delay" yaml:"post_clear_delay"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout" yaml:"completion_timeout"`
	FirstPartyHosts   []string      `mapstructure:"first_party_hosts" yaml:"first_party_hosts"`
	DeleteSelectors   []string      `mapstructure:"delete_selectors" yaml:"delete_selectors"`
}

// RestoreConfig tunes the restore coordinator.
type RestoreConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPolls      int           `mapstructure:"max_polls" yaml:"max_polls"`
	PickerRetries int           `mapstructure:"picker_retries" yaml:"picker_retries"`
}

// SnapshotConfig controls snapshot persistence.
type SnapshotConfig struct {
	// DBPath is the sqlite file backing the durable store.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
	// CaptureInterval drives periodic capture while the user edits.
	CaptureInterval time.Duration `mapstructure:"capture_interval" yaml:"capture_interval"`
}

// RelayConfig tunes the privileged fetch relay.
type RelayConfig struct {
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Config is the root application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Restore  RestoreConfig  `mapstructure:"restore" yaml:"restore"`
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	Relay    RelayConfig    `mapstructure:"relay" yaml:"relay"`
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults alone.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration sections.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uplift")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.target_url", "")

	// -- Engine --
	v.SetDefault("engine.settle_delay", "150ms")
	v.SetDefault("engine.post_clear_delay", "400ms")
	v.SetDefault("engine.completion_timeout", "4s")
	v.SetDefault("engine.first_party_hosts", []string{})
	v.SetDefault("engine.delete_selectors", []string{})

	// -- Restore --
	v.SetDefault("restore.poll_interval", "500ms")
	v.SetDefault("restore.max_polls", 3)
	v.SetDefault("restore.picker_retries", 3)

	// -- Snapshot --
	v.SetDefault("snapshot.db_path", "uplift-state.db")
	v.SetDefault("snapshot.capture_interval", "15s")

	// -- Relay --
	v.SetDefault("relay.rate_per_second", 4.0)
	v.SetDefault("relay.max_body_bytes", 25<<20)
	v.SetDefault("relay.timeout", "30s")
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}
	if c.Restore.MaxPolls < 1 {
		return fmt.Errorf("restore.max_polls must be a positive integer")
	}
	if c.Relay.RatePerSecond <= 0 {
		return fmt.Errorf("relay.rate_per_second must be positive")
	}
	if c.Snapshot.DBPath == "" {
		return fmt.Errorf("snapshot.db_path is a required configuration field")
	}
	return nil
}
