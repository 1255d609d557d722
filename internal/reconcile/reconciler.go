package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/result"
	"github.com/MrEthical07/authctl/session"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("reconciler already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("reconciler closed")
)

// Hooks observe reconciliation. Nil hooks are skipped.
type Hooks struct {
	OnEvent     func(kind backend.EventKind)
	OnBootstrap func(err error)
	OnStreamEnd func()
}

// Reconciler mirrors backend session state into a store.
type Reconciler struct {
	client backend.Client
	store  *session.Store
	logger *slog.Logger
	hooks  Hooks

	mu      sync.Mutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	sub     backend.Subscription
	wg      sync.WaitGroup
}

// New returns a reconciler that is not yet running.
func New(client backend.Client, store *session.Store, logger *slog.Logger, hooks Hooks) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		client: client,
		store:  store,
		logger: logger.With("component", "reconciler"),
		hooks:  hooks,
	}
}

// Start subscribes to auth events and launches the bootstrap read. It returns
// without waiting for either. ctx bounds the lifetime of both; Close stops them
// early.
//
// A subscription failure is returned, but the bootstrap still runs so the store
// leaves the initializing state.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}
	r.started = true

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	sub, subErr := r.client.SubscribeAuthEvents(runCtx)
	if subErr != nil {
		r.logger.Error("auth event subscription failed", "error", subErr)
		subErr = fmt.Errorf("subscribe auth events: %w", subErr)
	} else {
		r.sub = sub
		r.wg.Add(1)
		go r.consume(runCtx, sub)
	}

	r.wg.Add(1)
	go r.bootstrap(runCtx)

	return subErr
}

// Close stops the event loop, closes the subscription and waits for both
// goroutines. It is safe to call more than once.
func (r *Reconciler) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel, sub := r.cancel, r.sub
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if sub != nil {
		err = sub.Close()
	}
	r.wg.Wait()
	return err
}

func (r *Reconciler) bootstrap(ctx context.Context) {
	defer r.wg.Done()

	s, err := r.fetch(ctx)
	if r.hooks.OnBootstrap != nil {
		r.hooks.OnBootstrap(err)
	}
	if err != nil {
		r.logger.Error("initial session fetch failed", "error", err)
		r.store.Apply(session.Update{Initializing: session.Set(false)})
		return
	}

	r.logger.Debug("initial session fetched", "authenticated", s.Valid())
	r.store.Apply(session.Update{
		Session:      session.Set(s),
		Initializing: session.Set(false),
	})
}

func (r *Reconciler) fetch(ctx context.Context) (s *session.Session, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s, err = nil, result.FromPanic(rec, "initial session fetch panicked").Cause()
		}
	}()
	return r.client.GetSession(ctx)
}

func (r *Reconciler) consume(ctx context.Context, sub backend.Subscription) {
	defer r.wg.Done()

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() == nil {
					r.logger.Warn("auth event stream ended")
					if r.hooks.OnStreamEnd != nil {
						r.hooks.OnStreamEnd()
					}
				}
				return
			}
			r.apply(ev)
		}
	}
}

func (r *Reconciler) apply(ev backend.AuthEvent) {
	if r.hooks.OnEvent != nil {
		r.hooks.OnEvent(ev.Kind)
	}
	r.logger.Debug("auth event", "kind", ev.Kind, "authenticated", ev.Session.Valid())
	r.store.Apply(session.Update{
		Session:      session.Set(ev.Session),
		Initializing: session.Set(false),
		LastError:    session.Set(result.KindNone),
	})
}
