package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:9400/ws/rpc", cfg.RPC.URL)
	assert.Equal(t, int64(100*1024*1024), cfg.RPC.MaxFrameSize)
	assert.Equal(t, 5*time.Minute, cfg.RPC.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.RPC.PingTimeout)
	assert.Equal(t, 10*time.Second, cfg.RPC.CloseTimeout)
	assert.Equal(t, 30*time.Second, cfg.RPC.CallTimeout)
	assert.Equal(t, 120*time.Second, cfg.RPC.MediaTimeout)
	assert.True(t, cfg.RPC.FailPendingOnDisconnect)
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.RateLimit.GlobalPerMinute)
	assert.Equal(t, 10, cfg.RateLimit.RecipientPerMinute)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.MessageDelay)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
rpc:
  url: wss://backend.example:9400/ws/rpc
  call_timeout: 5s
  media_timeout: 1m
  fail_pending_on_disconnect: false
server:
  addr: ":8080"
  cors_origins:
    - http://localhost:3000
ratelimit:
  enabled: false
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://backend.example:9400/ws/rpc", cfg.RPC.URL)
	assert.Equal(t, 5*time.Second, cfg.RPC.CallTimeout)
	assert.Equal(t, time.Minute, cfg.RPC.MediaTimeout)
	assert.False(t, cfg.RPC.FailPendingOnDisconnect)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 5*time.Minute, cfg.RPC.PingInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WADASH_RPC_CALL_TIMEOUT", "12s")
	t.Setenv("WADASH_SERVER_ADDR", ":9000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.RPC.CallTimeout)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoadLegacyURLEnv(t *testing.T) {
	t.Setenv(LegacyURLEnv, "ws://legacy:9400/ws/rpc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://legacy:9400/ws/rpc", cfg.RPC.URL)

	t.Setenv("WADASH_RPC_URL", "ws://preferred:9400/ws/rpc")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://preferred:9400/ws/rpc", cfg.RPC.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigRead)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"http url", func(c *Config) { c.RPC.URL = "http://localhost:9400/ws/rpc" }},
		{"ping timeout not below interval", func(c *Config) { c.RPC.PingTimeout = c.RPC.PingInterval }},
		{"zero call timeout", func(c *Config) { c.RPC.CallTimeout = 0 }},
		{"media shorter than call", func(c *Config) { c.RPC.MediaTimeout = time.Second }},
		{"zero frame size", func(c *Config) { c.RPC.MaxFrameSize = 0 }},
		{"zero reconnect delay", func(c *Config) { c.Reconnect.InitialDelay = 0 }},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero recipient limit", func(c *Config) { c.RateLimit.RecipientPerMinute = 0 }},
		{"negative delay", func(c *Config) { c.RateLimit.MessageDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
		})
	}
}

func TestConverters(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	tc := cfg.Transport()
	assert.Equal(t, cfg.RPC.PingInterval, tc.PingInterval)
	assert.Equal(t, cfg.RPC.MaxFrameSize, tc.MaxFrameSize)

	sc := cfg.Session()
	assert.Equal(t, cfg.RPC.URL, sc.URL)
	assert.Equal(t, cfg.RPC.CallTimeout, sc.CallTimeout)
	assert.NoError(t, sc.Validate())

	b := cfg.Backoff()
	assert.Equal(t, 500*time.Millisecond, b.InitialDelay)
	assert.True(t, b.Jitter)

	d := cfg.Dashboard()
	assert.Equal(t, ":5000", d.Addr)
	assert.Equal(t, 10, d.RateLimit.RecipientPerMinute)
	assert.Empty(t, d.CORSOrigins)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, d.TrustedProxies)
	require.NoError(t, d.Validate())

	l := cfg.Logging()
	assert.Equal(t, "info", l.Level)
}
