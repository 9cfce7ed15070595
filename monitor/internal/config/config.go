package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/spacewatch/monitor/internal/compute"
	"github.com/obsidianstack/spacewatch/pkg/types"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBaseURL           = "http://localhost:5000/api/"
	DefaultRequestTimeout    = 10 * time.Second
	DefaultWindowCap         = 500
	DefaultSeedLimit         = 300
	DefaultAlertCap          = 50
	DefaultAlertHistoryLimit = 50
	DefaultAlertMaxAge       = 5 * time.Minute
	DefaultPruneInterval     = 5 * time.Minute
	DefaultFreshFor          = 10 * time.Second
	DefaultFreshnessInterval = 10 * time.Second
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultBackoffInitial    = time.Second
	DefaultBackoffMax        = time.Minute
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SPACEWATCH_"

// Config is the top-level monitor configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Log        LogConfig          `yaml:"log"`
	Upstream   Upstream           `yaml:"upstream"`
	Window     WindowConfig       `yaml:"window"`
	Alerts     AlertsConfig       `yaml:"alerts"`
	Freshness  FreshnessConfig    `yaml:"freshness"`
	Thresholds compute.Thresholds `yaml:"thresholds"`
	Reconnect  ReconnectConfig    `yaml:"reconnect"`
	Server     ServerConfig       `yaml:"server"`
	Notify     NotifyConfig       `yaml:"notify"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" env:"LOG_LEVEL,overwrite"`
}

// SlogLevel maps Level onto slog. Unknown values map to Info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Upstream describes the space-weather API that supplies history and streams.
type Upstream struct {
	// BaseURL is the API root. Relative paths below are resolved against it.
	BaseURL string `yaml:"base_url" env:"UPSTREAM_BASE_URL,overwrite"`

	// RuntimeConfigURL, when set, points at a config.json document whose
	// apiBaseUrl replaces BaseURL at startup.
	RuntimeConfigURL string `yaml:"runtime_config_url" env:"UPSTREAM_RUNTIME_CONFIG_URL,overwrite"`

	// Transport selects the push-stream wire protocol: sse | websocket.
	Transport string `yaml:"transport" env:"UPSTREAM_TRANSPORT,overwrite"`

	SamplesPath   string `yaml:"samples_path"`
	SamplesStream string `yaml:"samples_stream"`
	AlertsPath    string `yaml:"alerts_path"`
	AlertsStream  string `yaml:"alerts_stream"`

	// Timeout bounds each history request. Streams are not subject to it.
	Timeout time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT,overwrite"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// Resolve returns ref resolved against BaseURL.
func (u Upstream) Resolve(ref string) (string, error) {
	return ResolveURL(u.BaseURL, ref)
}

// ResolveURL resolves ref against base. A base without a trailing slash is
// treated as a directory.
func ResolveURL(base, ref string) (string, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// AuthConfig specifies how the monitor authenticates to the upstream.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header carries the API key in apikey mode.
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

// TLSConfig holds TLS dial options for the upstream.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// WindowConfig sizes the sample window.
type WindowConfig struct {
	Capacity  int `yaml:"capacity"`
	SeedLimit int `yaml:"seed_limit"`
}

// AlertsConfig sizes the alert set and its timers.
type AlertsConfig struct {
	Capacity      int           `yaml:"capacity"`
	HistoryLimit  int           `yaml:"history_limit"`
	MaxAge        time.Duration `yaml:"max_age"`
	PruneInterval time.Duration `yaml:"prune_interval"`
	FreshFor      time.Duration `yaml:"fresh_for"`
}

// FreshnessConfig controls the freshness recompute cadence.
type FreshnessConfig struct {
	RecomputeInterval time.Duration `yaml:"recompute_interval"`
}

// ReconnectConfig controls automatic redial of dropped push streams.
// With Enabled false a dropped sample stream stays DISCONNECTED and the
// alert feed reopens only on the next subscription.
type ReconnectConfig struct {
	Enabled         bool          `yaml:"enabled" env:"RECONNECT_ENABLED,overwrite"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	// MaxElapsed stops retrying after this long. Zero retries forever.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// ServerConfig configures the upward JSON API and WebSocket hub.
type ServerConfig struct {
	HTTPPort          int              `yaml:"http_port" env:"HTTP_PORT,overwrite"`
	BroadcastInterval time.Duration    `yaml:"broadcast_interval"`
	Auth              ServerAuthConfig `yaml:"auth"`
}

// ServerAuthConfig configures API key protection of the JSON API.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`
	// Header defaults to X-API-Key.
	Header string `yaml:"header"`
	KeyEnv string `yaml:"key_env"`
}

// Key returns the expected API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// NotifyConfig configures webhook delivery of fresh alerts.
type NotifyConfig struct {
	// MinLevel is the lowest alert level delivered: info | warning | critical.
	MinLevel string          `yaml:"min_level"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`
	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return lookupEnv(w.URLEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads the YAML config file at path, applies SPACEWATCH_* environment
// overrides and validates the result. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	return load(path, envconfig.OsLookuper())
}

func load(path string, env envconfig.Lookuper) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, env),
	})
	if err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Upstream: Upstream{
			BaseURL:       DefaultBaseURL,
			Transport:     "sse",
			SamplesPath:   "data",
			SamplesStream: "stream",
			AlertsPath:    "alerts",
			AlertsStream:  "alerts/stream",
			Timeout:       DefaultRequestTimeout,
		},
		Window: WindowConfig{
			Capacity:  DefaultWindowCap,
			SeedLimit: DefaultSeedLimit,
		},
		Alerts: AlertsConfig{
			Capacity:      DefaultAlertCap,
			HistoryLimit:  DefaultAlertHistoryLimit,
			MaxAge:        DefaultAlertMaxAge,
			PruneInterval: DefaultPruneInterval,
			FreshFor:      DefaultFreshFor,
		},
		Freshness:  FreshnessConfig{RecomputeInterval: DefaultFreshnessInterval},
		Thresholds: compute.DefaultThresholds(),
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: DefaultBackoffInitial,
			MaxInterval:     DefaultBackoffMax,
		},
		Server: ServerConfig{
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Notify: NotifyConfig{MinLevel: string(types.LevelWarning)},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q is not an absolute url", cfg.Upstream.BaseURL)
	}
	switch cfg.Upstream.Transport {
	case "sse", "websocket":
	default:
		return fmt.Errorf("upstream.transport: unknown value %q", cfg.Upstream.Transport)
	}
	switch cfg.Upstream.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("upstream.auth: unknown mode %q", cfg.Upstream.Auth.Mode)
	}
	if cfg.Upstream.Auth.Mode == "apikey" && cfg.Upstream.Auth.Header == "" {
		return fmt.Errorf("upstream.auth.header is required for apikey mode")
	}
	if cfg.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}

	if cfg.Window.Capacity <= 0 {
		return fmt.Errorf("window.capacity must be positive")
	}
	if cfg.Window.SeedLimit <= 0 {
		return fmt.Errorf("window.seed_limit must be positive")
	}
	if cfg.Alerts.Capacity <= 0 || cfg.Alerts.HistoryLimit <= 0 {
		return fmt.Errorf("alerts.capacity and alerts.history_limit must be positive")
	}
	for name, d := range map[string]time.Duration{
		"alerts.max_age":               cfg.Alerts.MaxAge,
		"alerts.prune_interval":        cfg.Alerts.PruneInterval,
		"alerts.fresh_for":             cfg.Alerts.FreshFor,
		"freshness.recompute_interval": cfg.Freshness.RecomputeInterval,
		"server.broadcast_interval":    cfg.Server.BroadcastInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if err := validateThresholds(cfg.Thresholds); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	if cfg.Reconnect.Enabled && cfg.Reconnect.InitialInterval <= 0 {
		return fmt.Errorf("reconnect.initial_interval must be positive")
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}

	switch types.Level(cfg.Notify.MinLevel) {
	case types.LevelInfo, types.LevelWarning, types.LevelCritical:
	default:
		return fmt.Errorf("notify.min_level: unknown level %q", cfg.Notify.MinLevel)
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
		if wh.URLEnv == "" {
			return fmt.Errorf("notify.webhooks[%d]: url_env is required", i)
		}
	}
	return nil
}

func validateThresholds(t compute.Thresholds) error {
	for name, c := range map[string]compute.Ceilings{
		"speed":            t.Speed,
		"density":          t.Density,
		"dynamic_pressure": t.Pressure,
	} {
		if c.Green > c.Yellow {
			return fmt.Errorf("%s: green ceiling %v above yellow %v", name, c.Green, c.Yellow)
		}
	}
	if t.Bz.Red > t.Bz.Yellow {
		return fmt.Errorf("bz: red limit %v above yellow %v", t.Bz.Red, t.Bz.Yellow)
	}
	return nil
}
