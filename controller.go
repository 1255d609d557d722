package authctl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authctl/backend"
	internalaudit "github.com/MrEthical07/authctl/internal/audit"
	"github.com/MrEthical07/authctl/internal/reconcile"
	"github.com/MrEthical07/authctl/redirect"
	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

// listenerPanicAuditWait bounds how long a listener panic report may hold up
// the store when the audit buffer is full.
const listenerPanicAuditWait = 100 * time.Millisecond

// Controller owns the in-process view of the current session. It reconciles
// that view against the backend's auth-event stream and funnels every
// operation outcome through a single store.
type Controller struct {
	config     Config
	client     backend.Client
	logger     *slog.Logger
	store      *session.Store
	redirects  *redirect.Deduper
	reconciler *reconcile.Reconciler
	audit      *internalaudit.Dispatcher
	metrics    *Metrics

	busy      atomic.Bool
	started   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// Start subscribes to the backend's auth events and dispatches the initial
// session fetch. It returns without waiting for either; State().Initializing
// reports when the first of them resolves.
//
// A subscription failure is returned, but the controller stays usable and still
// leaves the initializing state once the fetch resolves.
func (c *Controller) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrControllerClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrControllerStarted
	}
	return c.reconciler.Start(ctx)
}

// Close releases the event subscription and flushes the audit dispatcher. It is
// safe to call more than once.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.reconciler.Close()
		c.audit.Close()
	})
	return err
}

// State returns a snapshot of the current state.
func (c *Controller) State() State {
	return c.store.Get()
}

// Subscribe registers fn for every state transition and returns its unsubscribe
// function. fn runs synchronously in subscription order and must not call back
// into mutating controller methods.
func (c *Controller) Subscribe(fn Listener) func() {
	return c.store.Subscribe(fn)
}

// IsAuthenticated reports whether a session is currently held.
func (c *Controller) IsAuthenticated() bool {
	return c.store.Get().Session != nil
}

// RedirectStrategy reports how redirect URIs are resolved for this backend.
func (c *Controller) RedirectStrategy() redirect.Strategy {
	return c.redirects.Strategy()
}

// MetricsSnapshot returns a point-in-time copy of the controller metrics.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped because the
// dispatcher buffer was full.
func (c *Controller) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// AuditStats returns audit dispatcher counts. Drops are keyed by event type.
func (c *Controller) AuditStats() AuditStats {
	return c.audit.Stats()
}

func (c *Controller) onAuthEvent(kind backend.EventKind) {
	c.metrics.Inc(MetricAuthEvent)
	switch kind {
	case backend.EventSignedIn, backend.EventSignedOut:
		c.logger.Info("auth state changed", "event", kind)
	default:
		c.logger.Debug("auth event", "event", kind)
	}
}

func (c *Controller) onBootstrap(err error) {
	if err != nil {
		c.metrics.Inc(MetricBootstrapFailure)
		return
	}
	c.metrics.Inc(MetricBootstrapSuccess)
}

func (c *Controller) onStreamEnd() {
	c.metrics.Inc(MetricEventStreamEnded)
}

func (c *Controller) onListenerPanic(listener uint64, recovered any) {
	c.metrics.Inc(MetricListenerPanic)
	ctx, cancel := context.WithTimeout(context.Background(), listenerPanicAuditWait)
	defer cancel()
	c.emitAudit(ctx, AuditEvent{
		EventType: AuditListenerPanic,
		Success:   false,
		Kind:      string(result.KindUnexpected),
		Error:     fmt.Sprint(recovered),
		Metadata:  map[string]string{"listener": strconv.FormatUint(listener, 10)},
	})
}

func (c *Controller) emitAudit(ctx context.Context, event AuditEvent) {
	if c.audit == nil {
		return
	}
	c.audit.Emit(ctx, event)
}
