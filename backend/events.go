package backend

import (
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/authctl/session"
)

// EventKind names an auth-state transition pushed by the backend.
type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// AuthEvent pairs a transition with the session that is current after it.
// Session is nil for sign-out.
type AuthEvent struct {
	Kind    EventKind
	Session *session.Session
}

// Subscription is an open auth-event stream. Events arrive in publish order.
// The channel is closed after Close or when the stream ends.
type Subscription interface {
	Events() <-chan AuthEvent
	Close() error
}

const defaultHubBuffer = 16

// Hub fans published events out to every open subscription. A subscriber whose
// buffer is full misses the event; the miss is counted in Dropped.
type Hub struct {
	mu      sync.Mutex
	subs    map[*hubSubscription]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
}

// NewHub creates a hub with the per-subscriber buffer size. Non-positive sizes
// use a default of 16.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultHubBuffer
	}
	return &Hub{
		subs:   make(map[*hubSubscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe opens a new subscription.
func (h *Hub) Subscribe() (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrSubscriptionClosed
	}
	sub := &hubSubscription{
		hub: h,
		ch:  make(chan AuthEvent, h.buffer),
	}
	h.subs[sub] = struct{}{}
	return sub, nil
}

// Publish delivers ev to all subscribers without blocking.
func (h *Hub) Publish(ev AuthEvent) {
	if ev.Session != nil {
		ev.Session = ev.Session.Clone()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns the number of events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		close(sub.ch)
		delete(h.subs, sub)
	}
}

type hubSubscription struct {
	hub *Hub
	ch  chan AuthEvent
}

func (s *hubSubscription) Events() <-chan AuthEvent {
	return s.ch
}

func (s *hubSubscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s]; !ok {
		return nil
	}
	delete(s.hub.subs, s)
	close(s.ch)
	return nil
}
