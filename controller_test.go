package authctl

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authctl/backend"
	"github.com/MrEthical07/authctl/backend/backendtest"
	"github.com/MrEthical07/authctl/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, client backend.Client, mutate func(*Builder)) *Controller {
	t.Helper()
	b := New().WithBackend(client).WithLogger(discardLogger())
	if mutate != nil {
		mutate(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newSilentFake() *backendtest.Fake {
	f := backendtest.NewFake()
	f.SilentEvents = true
	return f
}

func sessionFor(id string) *session.Session {
	return &session.Session{
		User:         session.User{ID: id, Email: id + "@example.com"},
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		ExpiresAt:    time.Now().Add(time.Hour).Truncate(time.Second),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBuildRequiresBackend(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrBackendRequired) {
		t.Fatalf("expected ErrBackendRequired, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithBackend(newSilentFake()).WithLogger(discardLogger())
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()

	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password.MinLength = 0
	_, err := New().WithConfig(cfg).WithBackend(newSilentFake()).Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewControllerIsInitializing(t *testing.T) {
	c := newTestController(t, newSilentFake(), nil)
	st := c.State()
	if !st.Initializing || st.Session != nil || st.Pending || c.IsAuthenticated() {
		t.Fatalf("unexpected initial state %+v", st)
	}
}

func TestBootstrapNoSessionThenSignedInEvent(t *testing.T) {
	f := backendtest.NewFake()
	c := newTestController(t, f, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "bootstrap", func() bool { return !c.State().Initializing })
	if c.IsAuthenticated() {
		t.Fatal("expected no session after empty bootstrap")
	}

	a := sessionFor("a")
	f.Emit(backend.EventSignedIn, a)
	waitFor(t, "signed in event", func() bool { return session.Equal(c.State().Session, a) })

	st := c.State()
	if st.Initializing {
		t.Fatal("initializing must stay false")
	}
	if c.MetricsSnapshot().Counters[MetricAuthEvent] != 1 {
		t.Fatalf("expected one auth event metric, got %d", c.MetricsSnapshot().Counters[MetricAuthEvent])
	}
}

func TestInitializingFlipsOnceWhenEventWinsRace(t *testing.T) {
	f := backendtest.NewFake()
	release := make(chan struct{})
	f.GetSessionFunc = func(context.Context) (*session.Session, error) {
		<-release
		return nil, nil
	}
	c := newTestController(t, f, nil)

	var (
		mu    sync.Mutex
		flips int
		prev  = true
	)
	unsubscribe := c.Subscribe(func(st State) {
		mu.Lock()
		defer mu.Unlock()
		if prev && !st.Initializing {
			flips++
		}
		if !prev && st.Initializing {
			t.Error("initializing returned to true")
		}
		prev = st.Initializing
	})
	defer unsubscribe()

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "subscriber", func() bool { return f.Subscribers() == 1 })

	a := sessionFor("a")
	f.Emit(backend.EventSignedIn, a)
	waitFor(t, "event applied", func() bool { return !c.State().Initializing })
	close(release)
	waitFor(t, "bootstrap applied", func() bool { return c.State().Session == nil })

	mu.Lock()
	defer mu.Unlock()
	if flips != 1 {
		t.Fatalf("expected exactly one initializing flip, got %d", flips)
	}
}

func TestStartTwiceAndAfterClose(t *testing.T) {
	c := newTestController(t, newSilentFake(), nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrControllerStarted) {
		t.Fatalf("expected ErrControllerStarted, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	closed := newTestController(t, newSilentFake(), nil)
	_ = closed.Close()
	if err := closed.Start(context.Background()); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("expected ErrControllerClosed, got %v", err)
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	f := backendtest.NewFake()
	c := newTestController(t, f, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "subscriber", func() bool { return f.Subscribers() == 1 })
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if f.Subscribers() != 0 {
		t.Fatalf("expected subscription released, got %d subscribers", f.Subscribers())
	}
}

func TestBootstrapFailureCounted(t *testing.T) {
	f := newSilentFake()
	f.GetSessionFunc = func(context.Context) (*session.Session, error) {
		return nil, errors.New("offline")
	}
	c := newTestController(t, f, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "bootstrap", func() bool { return !c.State().Initializing })
	waitFor(t, "bootstrap metric", func() bool {
		return c.MetricsSnapshot().Counters[MetricBootstrapFailure] == 1
	})
}

func TestEventStreamEndCounted(t *testing.T) {
	f := backendtest.NewFake()
	c := newTestController(t, f, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "subscriber", func() bool { return f.Subscribers() == 1 })
	f.CloseStream()
	waitFor(t, "stream end metric", func() bool {
		return c.MetricsSnapshot().Counters[MetricEventStreamEnded] == 1
	})
}

func TestListenerPanicCountedAndAudited(t *testing.T) {
	f := newSilentFake()
	f.AddUser("a@b.com", "correct-horse", session.User{ID: "u1"})
	sink := NewChannelSink(8)
	c := newTestController(t, f, func(b *Builder) { b.WithAuditSink(sink) })

	var once sync.Once
	unsubscribe := c.Subscribe(func(st State) {
		if st.Pending {
			once.Do(func() { panic("listener exploded") })
		}
	})
	defer unsubscribe()

	if res := c.SignIn(context.Background(), "a@b.com", "correct-horse"); !res.OK() {
		t.Fatalf("expected sign in to survive a panicking listener, got %v", res.Kind())
	}
	if got := c.MetricsSnapshot().Counters[MetricListenerPanic]; got != 1 {
		t.Fatalf("expected one listener panic, got %d", got)
	}

	for range 2 {
		ev := nextAudit(t, sink)
		if ev.EventType != AuditListenerPanic {
			continue
		}
		if ev.Success || ev.Kind != "unexpected" || ev.Error != "listener exploded" || ev.Metadata["listener"] == "" {
			t.Fatalf("unexpected listener panic event %+v", ev)
		}
		return
	}
	t.Fatal("expected a listener panic audit event")
}
