package gotrue

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/authctl/jwt"
	"github.com/MrEthical07/authctl/storage"
)

const (
	// DefaultStorageKey is the storage key of the persisted session.
	DefaultStorageKey = "authctl-auth-token"
	// DefaultRefreshMargin is how close to expiry a session is refreshed.
	DefaultRefreshMargin = 90 * time.Second
	// DefaultAutoRefreshInterval is the tick of StartAutoRefresh.
	DefaultAutoRefreshInterval = 30 * time.Second
	// DefaultTimeout bounds every HTTP request.
	DefaultTimeout = 10 * time.Second

	defaultRateLimit = rate.Limit(10)
	defaultRateBurst = 5

	maxResponseBody = 1 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the service base URL, e.g. https://project.example.co/auth/v1.
	URL string
	// APIKey is sent as the apikey header on every request.
	APIKey string

	HTTPClient *http.Client
	// Storage persists the session. Nil uses an in-memory storage.
	Storage    storage.Storage
	StorageKey string
	// Inspector decodes access tokens. Nil decodes without verification.
	Inspector *jwt.Inspector

	// RateLimit is requests per second; rate.Inf disables limiting. Zero uses
	// the default of 10 with a burst of 5.
	RateLimit rate.Limit
	RateBurst int

	RefreshMargin       time.Duration
	AutoRefreshInterval time.Duration

	Logger *slog.Logger
}

func (c *Config) withDefaults() error {
	if err := validateBaseURL(c.URL); err != nil {
		return err
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.Storage == nil {
		c.Storage = storage.NewMemory()
	}
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.Inspector == nil {
		insp, err := jwt.New(jwt.Config{})
		if err != nil {
			return err
		}
		c.Inspector = insp
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultRateLimit
		if c.RateBurst == 0 {
			c.RateBurst = defaultRateBurst
		}
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = DefaultRefreshMargin
	}
	if c.AutoRefreshInterval <= 0 {
		c.AutoRefreshInterval = DefaultAutoRefreshInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

func validateBaseURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("gotrue: URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("gotrue: invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("gotrue: URL must use http or https scheme")
	}
	if u.Host == "" {
		return errors.New("gotrue: URL must have a host")
	}
	return nil
}
