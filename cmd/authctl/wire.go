package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/backend/backendtest"
	"github.com/MrEthical07/authctl/backend/gotrue"
	"github.com/MrEthical07/authctl/jwt"
	"github.com/MrEthical07/authctl/session"
	"github.com/MrEthical07/authctl/storage"
	"github.com/MrEthical07/authctl/storage/redisstore"
	"github.com/MrEthical07/authctl/storage/sqlitestore"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo-password"
	demoToken    = "demo-access-token"
)

type autoRefresher interface {
	StartAutoRefresh(ctx context.Context) (stop func())
}

// app is one CLI invocation's wiring. Closers run in reverse order.
type app struct {
	cfg        authctl.Config
	logger     *slog.Logger
	controller *authctl.Controller
	refresher  autoRefresher
	demo       bool
	closers    []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg authctl.Config, logger *slog.Logger, audit io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	client, err := a.newBackend(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	b := authctl.New().
		WithConfig(cfg).
		WithBackend(client).
		WithLogger(logger)
	if audit != nil {
		b.WithAuditSink(authctl.NewJSONWriterSink(audit))
	}
	c, err := b.Build()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build controller: %w", err)
	}
	a.controller = c
	a.closers = append(a.closers, c.Close)
	return a, nil
}

func (a *app) newBackend(ctx context.Context) (backend.Client, error) {
	if a.cfg.Backend.URL == "" {
		a.demo = true
		a.logger.Warn("no backend URL configured, using the in-memory demo backend",
			"email", demoEmail)
		return newDemoBackend(), nil
	}

	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	inspector, err := newInspector(a.cfg.Backend)
	if err != nil {
		return nil, err
	}

	gcfg := gotrue.Config{
		URL:                 a.cfg.Backend.URL,
		APIKey:              a.cfg.Backend.APIKey,
		Storage:             store,
		StorageKey:          a.cfg.Storage.Key,
		Inspector:           inspector,
		RateLimit:           rate.Limit(a.cfg.Backend.RateLimit),
		RateBurst:           a.cfg.Backend.RateBurst,
		RefreshMargin:       a.cfg.Backend.RefreshMargin,
		AutoRefreshInterval: a.cfg.Backend.AutoRefreshInterval,
		Logger:              a.logger,
	}
	if a.cfg.Backend.Timeout > 0 {
		gcfg.HTTPClient = &http.Client{Timeout: a.cfg.Backend.Timeout}
	}

	switch a.cfg.Backend.Flow {
	case authctl.FlowPKCE:
		c, err := gotrue.NewPKCE(gcfg)
		if err != nil {
			return nil, fmt.Errorf("create pkce client: %w", err)
		}
		a.refresher = c
		a.closers = append(a.closers, c.Close)
		return c, nil
	default:
		c, err := gotrue.New(gcfg)
		if err != nil {
			return nil, fmt.Errorf("create client: %w", err)
		}
		a.refresher = c
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
}

func newInspector(cfg authctl.BackendConfig) (*jwt.Inspector, error) {
	if cfg.JWTSecret == "" {
		return jwt.New(jwt.Config{})
	}
	insp, err := jwt.New(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		Secret:        []byte(cfg.JWTSecret),
		Leeway:        5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("create token inspector: %w", err)
	}
	return insp, nil
}

// openStorage returns the configured session storage, sealed when a seal key
// is set.
func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	var store storage.Storage
	cfg := a.cfg.Storage

	switch cfg.Driver {
	case authctl.StorageSQLite:
		s, err := sqlitestore.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		store = s
	case authctl.StorageRedis:
		url := cfg.RedisURL
		if url == "" {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start miniredis: %w", err)
			}
			a.closers = append(a.closers, func() error { mr.Close(); return nil })
			url = "redis://" + mr.Addr()
			a.logger.Info("using embedded miniredis", "addr", mr.Addr())
		}
		s, err := redisstore.Dial(ctx, url, cfg.Prefix, cfg.TTL)
		if err != nil {
			return nil, fmt.Errorf("open redis storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		store = s
	default:
		store = storage.NewMemory()
	}

	if cfg.SealKey != "" {
		sealed, err := storage.NewSealedBase64(store, cfg.SealKey)
		if err != nil {
			return nil, fmt.Errorf("seal storage: %w", err)
		}
		store = sealed
	}
	return store, nil
}

func newDemoBackend() *backendtest.Fake {
	f := backendtest.NewFake()
	user := session.User{ID: "demo-user", Email: demoEmail, DisplayName: "Demo User"}
	f.AddUser(demoEmail, demoPassword, user)
	f.RegisterToken(demoToken, user)
	return f
}
