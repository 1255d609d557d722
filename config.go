package authctl

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"
)

// Config controls controller policy and the wiring of the bundled CLI.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable.
type Config struct {
	Redirect RedirectConfig `envPrefix:"REDIRECT_"`
	OAuth    OAuthConfig    `envPrefix:"OAUTH_"`
	Password PasswordConfig `envPrefix:"PASSWORD_"`
	Audit    AuditConfig    `envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
	Backend  BackendConfig  `envPrefix:"BACKEND_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
}

/*
====================================
REDIRECT CONFIG
====================================
*/

// RedirectConfig describes the app's deep-link URIs.
type RedirectConfig struct {
	// Scheme is the app's custom URI scheme, e.g. "caloriee".
	Scheme string `env:"SCHEME"`
	// CallbackPath is where the OAuth flow and sign-up confirmation return.
	CallbackPath string `env:"CALLBACK_PATH"`
	// ResetPath is where the password-reset email sends the user.
	ResetPath string `env:"RESET_PATH"`
	// DedupeCapacity is how many handled redirect URIs are remembered.
	DedupeCapacity int `env:"DEDUPE_CAPACITY"`
}

// CallbackURL returns <scheme>://<callback path>.
func (r RedirectConfig) CallbackURL() string {
	return r.Scheme + "://" + strings.TrimLeft(r.CallbackPath, "/")
}

// ResetURL returns <scheme>://<reset path>.
func (r RedirectConfig) ResetURL() string {
	return r.Scheme + "://" + strings.TrimLeft(r.ResetPath, "/")
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls SignInWithOAuth.
type OAuthConfig struct {
	// DefaultProvider is used when SignInWithOAuth gets an empty provider.
	DefaultProvider string `env:"DEFAULT_PROVIDER"`
	// RedirectURI overrides Redirect.CallbackURL for OAuth.
	RedirectURI string `env:"REDIRECT_URI"`
	// QueryParams are forwarded to the provider's authorization endpoint.
	QueryParams map[string]string `env:"QUERY_PARAMS"`
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig is the client-side password policy, checked on SignUp before
// any backend call.
type PasswordConfig struct {
	MinLength int `env:"MIN_LENGTH"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// Backend flow types.
const (
	FlowImplicit = "implicit"
	FlowPKCE     = "pkce"
)

// BackendConfig describes the remote identity service. The controller itself
// takes any backend.Client; these values are read by the CLI.
type BackendConfig struct {
	URL    string `env:"URL"`
	APIKey string `env:"API_KEY"`
	// Flow is FlowImplicit or FlowPKCE.
	Flow string `env:"FLOW"`
	// JWTSecret enables HS256 verification of access tokens when set.
	JWTSecret string `env:"JWT_SECRET"`
	// RateLimit is outbound requests per second; zero uses the client default.
	RateLimit           float64       `env:"RATE_LIMIT"`
	RateBurst           int           `env:"RATE_BURST"`
	Timeout             time.Duration `env:"TIMEOUT"`
	RefreshMargin       time.Duration `env:"REFRESH_MARGIN"`
	AutoRefreshInterval time.Duration `env:"AUTO_REFRESH_INTERVAL"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// Storage drivers.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// StorageConfig selects where the backend client persists its session.
type StorageConfig struct {
	Driver string `env:"DRIVER"`
	// Path is the sqlite database file.
	Path string `env:"PATH"`
	// RedisURL is a redis:// URL. The CLI starts an embedded miniredis when it
	// is empty.
	RedisURL string        `env:"REDIS_URL"`
	Prefix   string        `env:"PREFIX"`
	TTL      time.Duration `env:"TTL"`
	// Key is the storage key of the persisted session.
	Key string `env:"KEY"`
	// SealKey is a base64 32-byte key. When set, stored values are encrypted.
	SealKey string `env:"SEAL_KEY"`
}

// DefaultConfig returns the defaults used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Redirect: RedirectConfig{
			Scheme:         "caloriee",
			CallbackPath:   "auth/callback",
			ResetPath:      "auth/reset-password",
			DedupeCapacity: 64,
		},
		OAuth: OAuthConfig{
			DefaultProvider: "google",
			QueryParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
		},
		Password: PasswordConfig{
			MinLength: 6,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Backend: BackendConfig{
			Flow:                FlowImplicit,
			Timeout:             10 * time.Second,
			RefreshMargin:       90 * time.Second,
			AutoRefreshInterval: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver: StorageMemory,
			Path:   "authctl.db",
			Prefix: "authctl:",
			Key:    "authctl-auth-token",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.OAuth.QueryParams = maps.Clone(cfg.OAuth.QueryParams)
	return out
}

// Validate reports the first invalid setting, wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	// Redirect
	if c.Redirect.Scheme == "" {
		return fmt.Errorf("Redirect Scheme must be set")
	}
	if u, err := url.Parse(c.Redirect.Scheme + "://x"); err != nil || u.Scheme != strings.ToLower(c.Redirect.Scheme) {
		return fmt.Errorf("Redirect Scheme %q is not a valid URI scheme", c.Redirect.Scheme)
	}
	if c.Redirect.CallbackPath == "" {
		return fmt.Errorf("Redirect CallbackPath must be set")
	}
	if c.Redirect.ResetPath == "" {
		return fmt.Errorf("Redirect ResetPath must be set")
	}
	if c.Redirect.DedupeCapacity < 0 {
		return fmt.Errorf("Redirect DedupeCapacity must be >= 0")
	}

	// OAuth
	if c.OAuth.DefaultProvider == "" {
		return fmt.Errorf("OAuth DefaultProvider must be set")
	}
	if c.OAuth.RedirectURI != "" {
		if _, err := url.Parse(c.OAuth.RedirectURI); err != nil {
			return fmt.Errorf("OAuth RedirectURI: %w", err)
		}
	}

	// Password
	if c.Password.MinLength < 1 {
		return fmt.Errorf("Password MinLength must be >= 1")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return fmt.Errorf("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return fmt.Errorf("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Backend
	switch c.Backend.Flow {
	case FlowImplicit, FlowPKCE:
	default:
		return fmt.Errorf("Backend Flow %q must be %q or %q", c.Backend.Flow, FlowImplicit, FlowPKCE)
	}
	if c.Backend.RateLimit < 0 || c.Backend.RateBurst < 0 {
		return fmt.Errorf("Backend RateLimit and RateBurst must be >= 0")
	}
	if c.Backend.Timeout < 0 || c.Backend.RefreshMargin < 0 || c.Backend.AutoRefreshInterval < 0 {
		return fmt.Errorf("Backend durations must be >= 0")
	}

	// Storage
	switch c.Storage.Driver {
	case StorageMemory, StorageRedis:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("Storage Path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("Storage Driver %q must be memory, sqlite or redis", c.Storage.Driver)
	}
	if c.Storage.TTL < 0 {
		return fmt.Errorf("Storage TTL must be >= 0")
	}
	return nil
}

func (c *Config) oauthRedirectURI() string {
	if c.OAuth.RedirectURI != "" {
		return c.OAuth.RedirectURI
	}
	return c.Redirect.CallbackURL()
}
