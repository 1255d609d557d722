package authctl

import (
	"log/slog"

	"github.com/MrEthical07/authctl/backend"
	internalaudit "github.com/MrEthical07/authctl/internal/audit"
	"github.com/MrEthical07/authctl/internal/reconcile"
	"github.com/MrEthical07/authctl/redirect"
	"github.com/MrEthical07/authctl/session"
)

// Builder assembles a [Controller].
//
// Builder instances are intended to be configured during initialization and
// are single use: a second Build fails with [ErrBuilderUsed].
type Builder struct {
	config    Config
	backend   backend.Client
	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the identity backend. It is required.
func (b *Builder) WithBackend(client backend.Client) *Builder {
	b.backend = client
	return b
}

// WithLogger sets the structured logger. The default is [slog.Default].
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit sink and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	if !enabled {
		b.config.Metrics.EnableLatencyHistograms = false
	}
	return b
}

// Build validates the configuration and returns a controller that is not yet
// started. Call [Controller.Start] to begin reconciliation.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	if b.backend == nil {
		return nil, ErrBackendRequired
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		config:  cfg,
		client:  b.backend,
		logger:  logger.With("component", "controller"),
		store:   session.NewStore(logger),
		metrics: NewMetrics(cfg.Metrics),
	}
	c.redirects = redirect.Deduplicate(redirect.New(b.backend, logger), cfg.Redirect.DedupeCapacity)
	c.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)
	c.store.OnListenerPanic(c.onListenerPanic)
	c.reconciler = reconcile.New(b.backend, c.store, logger, reconcile.Hooks{
		OnEvent:     c.onAuthEvent,
		OnBootstrap: c.onBootstrap,
		OnStreamEnd: c.onStreamEnd,
	})

	b.built = true

	return c, nil
}
