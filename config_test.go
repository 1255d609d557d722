package authctl

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Redirect.CallbackURL() != "caloriee://auth/callback" {
		t.Fatalf("unexpected callback url %q", cfg.Redirect.CallbackURL())
	}
	if cfg.Redirect.ResetURL() != "caloriee://auth/reset-password" {
		t.Fatalf("unexpected reset url %q", cfg.Redirect.ResetURL())
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty scheme":         func(c *Config) { c.Redirect.Scheme = "" },
		"bad scheme":           func(c *Config) { c.Redirect.Scheme = "my app" },
		"negative dedupe":      func(c *Config) { c.Redirect.DedupeCapacity = -1 },
		"no provider":          func(c *Config) { c.OAuth.DefaultProvider = "" },
		"zero min length":      func(c *Config) { c.Password.MinLength = 0 },
		"audit buffer":         func(c *Config) { c.Audit.Enabled = true; c.Audit.BufferSize = 0 },
		"latency without base": func(c *Config) { c.Metrics.Enabled = false },
		"unknown flow":         func(c *Config) { c.Backend.Flow = "hybrid" },
		"negative timeout":     func(c *Config) { c.Backend.Timeout = -time.Second },
		"unknown driver":       func(c *Config) { c.Storage.Driver = "etcd" },
		"sqlite without path":  func(c *Config) { c.Storage.Driver = StorageSQLite; c.Storage.Path = "" },
		"negative storage ttl": func(c *Config) { c.Storage.TTL = -time.Second },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestCloneConfigCopiesQueryParams(t *testing.T) {
	cfg := DefaultConfig()
	clone := cloneConfig(cfg)
	clone.OAuth.QueryParams["prompt"] = "none"
	if cfg.OAuth.QueryParams["prompt"] != "consent" {
		t.Fatal("clone must not share query params")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	cfg, err := loadConfig(map[string]string{
		"AUTHCTL_REDIRECT_SCHEME":        "myapp",
		"AUTHCTL_PASSWORD_MIN_LENGTH":    "10",
		"AUTHCTL_OAUTH_QUERY_PARAMS":     "prompt:select_account",
		"AUTHCTL_BACKEND_URL":            "https://id.example.test/auth/v1",
		"AUTHCTL_BACKEND_FLOW":           "pkce",
		"AUTHCTL_BACKEND_REFRESH_MARGIN": "2m",
		"AUTHCTL_STORAGE_DRIVER":         "sqlite",
		"AUTHCTL_STORAGE_PATH":           "/tmp/auth.db",
		"AUTHCTL_AUDIT_ENABLED":          "true",
	})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Redirect.CallbackURL() != "myapp://auth/callback" {
		t.Fatalf("unexpected callback url %q", cfg.Redirect.CallbackURL())
	}
	if cfg.Password.MinLength != 10 || cfg.Backend.Flow != FlowPKCE || cfg.Backend.RefreshMargin != 2*time.Minute {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.OAuth.QueryParams["prompt"] != "select_account" {
		t.Fatalf("unexpected query params %v", cfg.OAuth.QueryParams)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.Path != "/tmp/auth.db" || !cfg.Audit.Enabled {
		t.Fatalf("unexpected storage/audit config %+v %+v", cfg.Storage, cfg.Audit)
	}
	if cfg.OAuth.DefaultProvider != "google" {
		t.Fatal("unset variables must keep defaults")
	}
}

func TestLoadConfigFromEnvironmentErrors(t *testing.T) {
	if _, err := loadConfig(map[string]string{"AUTHCTL_PASSWORD_MIN_LENGTH": "six"}); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := loadConfig(map[string]string{"AUTHCTL_BACKEND_FLOW": "hybrid"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
