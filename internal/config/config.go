// Package config loads the dashboard configuration from defaults, an
// optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/luciancaetano/wadash/internal/dashboard"
	"github.com/luciancaetano/wadash/internal/logging"
	"github.com/luciancaetano/wadash/internal/rpc"
	"github.com/luciancaetano/wadash/internal/websocket"
)

// EnvPrefix prefixes every environment override, e.g. WADASH_RPC_URL.
const EnvPrefix = "WADASH"

// LegacyURLEnv is the endpoint variable read by earlier dashboard releases.
const LegacyURLEnv = "GO_WS_RPC_URL"

// Errors returned by Load.
var (
	ErrConfigRead    = errors.New("config: read failed")
	ErrConfigInvalid = errors.New("config: invalid")
)

// Config is the complete wadash configuration.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

// RPCConfig configures the backend session.
type RPCConfig struct {
	URL                     string        `mapstructure:"url"`
	MaxFrameSize            int64         `mapstructure:"max_frame_size"`
	PingInterval            time.Duration `mapstructure:"ping_interval"`
	PingTimeout             time.Duration `mapstructure:"ping_timeout"`
	CloseTimeout            time.Duration `mapstructure:"close_timeout"`
	HandshakeTimeout        time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout"`
	CallTimeout             time.Duration `mapstructure:"call_timeout"`
	MediaTimeout            time.Duration `mapstructure:"media_timeout"`
	FailPendingOnDisconnect bool          `mapstructure:"fail_pending_on_disconnect"`
	EnableCompression       bool          `mapstructure:"enable_compression"`
}

// ReconnectConfig configures the reconnect backoff.
type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       bool          `mapstructure:"jitter"`
}

// ServerConfig configures the dashboard listener.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// RateLimitConfig configures dashboard rate limiting.
type RateLimitConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	GlobalPerMinute    int           `mapstructure:"global_per_minute"`
	RecipientPerMinute int           `mapstructure:"recipient_per_minute"`
	MessageDelay       time.Duration `mapstructure:"message_delay"`
}

// LogConfig configures logging and file rotation.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "ws://localhost:9400/ws/rpc")
	v.SetDefault("rpc.max_frame_size", int64(100*1024*1024))
	v.SetDefault("rpc.ping_interval", 5*time.Minute)
	v.SetDefault("rpc.ping_timeout", 60*time.Second)
	v.SetDefault("rpc.close_timeout", 10*time.Second)
	v.SetDefault("rpc.handshake_timeout", 10*time.Second)
	v.SetDefault("rpc.write_timeout", 10*time.Second)
	v.SetDefault("rpc.call_timeout", 30*time.Second)
	v.SetDefault("rpc.media_timeout", 120*time.Second)
	v.SetDefault("rpc.fail_pending_on_disconnect", true)
	v.SetDefault("rpc.enable_compression", false)

	v.SetDefault("reconnect.initial_delay", 500*time.Millisecond)
	v.SetDefault("reconnect.max_delay", 30*time.Second)
	v.SetDefault("reconnect.multiplier", 2.0)
	v.SetDefault("reconnect.jitter", true)

	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1", "::1"})

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.global_per_minute", 20)
	v.SetDefault("ratelimit.recipient_per_minute", 10)
	v.SetDefault("ratelimit.message_delay", 3*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads the configuration. An explicit path must exist; with an empty
// path config.yaml is looked up in . and ./configs and is optional.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("rpc.url", EnvPrefix+"_RPC_URL", LegacyURLEnv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRead, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RPC.URL)
	if err != nil {
		return fmt.Errorf("%w: rpc.url: %v", ErrConfigInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: rpc.url must use ws or wss, got %q", ErrConfigInvalid, c.RPC.URL)
	}
	if c.RPC.PingTimeout >= c.RPC.PingInterval {
		return fmt.Errorf("%w: rpc.ping_timeout (%v) must be less than rpc.ping_interval (%v)",
			ErrConfigInvalid, c.RPC.PingTimeout, c.RPC.PingInterval)
	}
	if c.RPC.CallTimeout <= 0 {
		return fmt.Errorf("%w: rpc.call_timeout must be positive, got %v", ErrConfigInvalid, c.RPC.CallTimeout)
	}
	if c.RPC.MediaTimeout < c.RPC.CallTimeout {
		return fmt.Errorf("%w: rpc.media_timeout (%v) must not be shorter than rpc.call_timeout (%v)",
			ErrConfigInvalid, c.RPC.MediaTimeout, c.RPC.CallTimeout)
	}
	if err := c.Transport().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("%w: reconnect.initial_delay must be positive, got %v", ErrConfigInvalid, c.Reconnect.InitialDelay)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrConfigInvalid)
	}
	if c.RateLimit.Enabled && (c.RateLimit.GlobalPerMinute <= 0 || c.RateLimit.RecipientPerMinute <= 0) {
		return fmt.Errorf("%w: ratelimit limits must be positive when enabled", ErrConfigInvalid)
	}
	if c.RateLimit.MessageDelay < 0 {
		return fmt.Errorf("%w: ratelimit.message_delay must not be negative", ErrConfigInvalid)
	}
	return nil
}

// Transport returns the connection parameters.
func (c *Config) Transport() *websocket.TransportConfig {
	tc := websocket.DefaultTransportConfig()
	tc.MaxFrameSize = c.RPC.MaxFrameSize
	tc.PingInterval = c.RPC.PingInterval
	tc.PingTimeout = c.RPC.PingTimeout
	tc.CloseTimeout = c.RPC.CloseTimeout
	tc.HandshakeTimeout = c.RPC.HandshakeTimeout
	tc.WriteTimeout = c.RPC.WriteTimeout
	tc.EnableCompression = c.RPC.EnableCompression
	return tc
}

// Session returns the session configuration. Logger and metrics are left
// for the caller.
func (c *Config) Session() *rpc.SessionConfig {
	sc := rpc.DefaultSessionConfig(c.RPC.URL)
	sc.Transport = c.Transport()
	sc.CallTimeout = c.RPC.CallTimeout
	sc.FailPendingOnDisconnect = c.RPC.FailPendingOnDisconnect
	return sc
}

// Backoff returns the reconnect backoff.
func (c *Config) Backoff() rpc.BackoffConfig {
	return rpc.BackoffConfig{
		InitialDelay: c.Reconnect.InitialDelay,
		MaxDelay:     c.Reconnect.MaxDelay,
		Multiplier:   c.Reconnect.Multiplier,
		Jitter:       c.Reconnect.Jitter,
	}
}

// Logging returns the logger configuration. Console output is always on.
func (c *Config) Logging() *logging.Config {
	return &logging.Config{
		Level:      c.Log.Level,
		Format:     logging.Format(c.Log.Format),
		File:       c.Log.File,
		Console:    true,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}

// Dashboard returns the HTTP server configuration. Logger, metrics and
// gatherer are left for the caller.
func (c *Config) Dashboard() *dashboard.Config {
	return &dashboard.Config{
		Addr:            c.Server.Addr,
		ShutdownTimeout: dashboard.DefaultShutdownTimeout,
		CORSOrigins:     c.Server.CORSOrigins,
		TrustedProxies:  c.Server.TrustedProxies,
		RateLimit: dashboard.RateLimitConfig{
			Enabled:            c.RateLimit.Enabled,
			GlobalPerMinute:    c.RateLimit.GlobalPerMinute,
			RecipientPerMinute: c.RateLimit.RecipientPerMinute,
			MessageDelay:       c.RateLimit.MessageDelay,
		},
	}
}
