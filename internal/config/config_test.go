package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "uplift", cfg.Logger.ServiceName)

	assert.Equal(t, 150*time.Millisecond, cfg.Engine.SettleDelay)
	assert.Equal(t, 400*time.Millisecond, cfg.Engine.PostClearDelay)
	assert.Equal(t, 4*time.Second, cfg.Engine.CompletionTimeout)

	assert.Equal(t, 500*time.Millisecond, cfg.Restore.PollInterval)
	assert.Equal(t, 3, cfg.Restore.MaxPolls)

	assert.Equal(t, "uplift-state.db", cfg.Snapshot.DBPath)
	assert.Equal(t, 15*time.Second, cfg.Snapshot.CaptureInterval)

	assert.Equal(t, 4.0, cfg.Relay.RatePerSecond)
	assert.Equal(t, int64(25<<20), cfg.Relay.MaxBodyBytes)

	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	yaml := `
logger:
  level: debug
  format: json
browser:
  remote_url: ws://127.0.0.1:9222
engine:
  settle_delay: 75ms
  first_party_hosts:
    - assets.example.com
relay:
  rate_per_second: 10
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "ws://127.0.0.1:9222", cfg.Browser.RemoteURL)
	assert.Equal(t, 75*time.Millisecond, cfg.Engine.SettleDelay)
	assert.Equal(t, []string{"assets.example.com"}, cfg.Engine.FirstPartyHosts)
	assert.Equal(t, 10.0, cfg.Relay.RatePerSecond)

	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Restore.MaxPolls)
	assert.Equal(t, "uplift-state.db", cfg.Snapshot.DBPath)
}

func TestValidateRejectsBadValues(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"zero max polls", func(c *Config) { c.Restore.MaxPolls = 0 }, "restore.max_polls"},
		{"negative rate", func(c *Config) { c.Relay.RatePerSecond = -1 }, "relay.rate_per_second"},
		{"empty db path", func(c *Config) { c.Snapshot.DBPath = "" }, "snapshot.db_path"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAcceptsUppercaseFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Logger.Format = "JSON"
	assert.NoError(t, cfg.Validate())
}
