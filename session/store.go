package session

import (
	"fmt"
	"log/slog"
	"sync"
)

// Listener receives the state snapshot produced by each applied update.
// Listeners run synchronously on the applying goroutine and must not call
// Store.Apply themselves.
type Listener func(State)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Store is the process-wide session state. The zero value is not usable; call
// NewStore.
type Store struct {
	// writeMu serializes Apply so that notifications are delivered in apply order.
	writeMu sync.Mutex

	mu    sync.RWMutex
	state State

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      uint64
	onPanic     func(listener uint64, recovered any)

	logger *slog.Logger
}

// NewStore returns a store in its startup state: no session, initializing.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		state:  State{Initializing: true},
		logger: logger.With("component", "session_store"),
	}
}

// OnListenerPanic registers fn to be told about every recovered listener panic.
// fn runs on the applying goroutine and must not call Apply.
func (s *Store) OnListenerPanic(fn func(listener uint64, recovered any)) {
	s.listenersMu.Lock()
	s.onPanic = fn
	s.listenersMu.Unlock()
}

// Get returns a snapshot of the current state.
func (s *Store) Get() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn for every subsequent transition. The returned function
// removes the listener and may be called more than once.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}

	s.listenersMu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Apply merges u into the state and notifies listeners with the result. An
// empty update is a no-op and notifies nobody.
func (s *Store) Apply(u Update) {
	s.ApplyThen(u, nil)
}

// ApplyThen is Apply with a hook. committed runs once the new state is visible
// to Get and before any listener is notified; no other Apply can start until
// notification ends. committed runs even when u is empty.
func (s *Store) ApplyThen(u Update, committed func()) {
	if u.Empty() {
		if committed != nil {
			committed()
		}
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := s.state
	if u.Session.Set {
		switch {
		case u.Session.Value == nil:
			next.Session = nil
		case u.Session.Value.Valid():
			next.Session = u.Session.Value.Clone()
		default:
			s.logger.Warn("rejected incomplete session update",
				"has_user", u.Session.Value.User.ID != "",
				"has_access_token", u.Session.Value.AccessToken != "",
			)
		}
	}
	if u.Initializing.Set && !(u.Initializing.Value && !s.state.Initializing) {
		next.Initializing = u.Initializing.Value
	}
	if u.Pending.Set {
		next.Pending = u.Pending.Value
	}
	if u.LastError.Set {
		next.LastError = u.LastError.Value
	}
	next.Version++
	s.state = next
	snapshot := next.clone()
	s.mu.Unlock()

	if committed != nil {
		committed()
	}

	s.listenersMu.Lock()
	listeners := make([]listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	onPanic := s.onPanic
	s.listenersMu.Unlock()

	for _, l := range listeners {
		s.notify(l, snapshot, onPanic)
	}
}

func (s *Store) notify(l listenerEntry, snapshot State, onPanic func(uint64, any)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("state listener panicked",
				"listener", l.id,
				"panic", fmt.Sprint(r),
			)
			if onPanic != nil {
				onPanic(l.id, r)
			}
		}
	}()
	// Each listener gets its own copy so one cannot alter what the next sees.
	l.fn(snapshot.clone())
}
