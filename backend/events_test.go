package backend

import (
	"errors"
	"testing"

	"github.com/MrEthical07/authctl/session"
)

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(4)
	sub, err := hub.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	hub.Publish(AuthEvent{Kind: EventSignedIn, Session: &session.Session{User: session.User{ID: "u1"}, AccessToken: "a"}})
	hub.Publish(AuthEvent{Kind: EventTokenRefreshed})
	hub.Publish(AuthEvent{Kind: EventSignedOut})

	want := []EventKind{EventSignedIn, EventTokenRefreshed, EventSignedOut}
	for i, kind := range want {
		ev := <-sub.Events()
		if ev.Kind != kind {
			t.Fatalf("event %d: expected %s, got %s", i, kind, ev.Kind)
		}
	}
}

func TestHubPublishCopiesSession(t *testing.T) {
	hub := NewHub(1)
	sub, _ := hub.Subscribe()
	s := &session.Session{User: session.User{ID: "u1"}, AccessToken: "a"}
	hub.Publish(AuthEvent{Kind: EventSignedIn, Session: s})
	s.AccessToken = "changed"

	ev := <-sub.Events()
	if ev.Session.AccessToken != "a" {
		t.Fatalf("expected published copy, got %q", ev.Session.AccessToken)
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := NewHub(1)
	if _, err := hub.Subscribe(); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	hub.Publish(AuthEvent{Kind: EventSignedIn})
	hub.Publish(AuthEvent{Kind: EventSignedOut})

	if hub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", hub.Dropped())
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(1)
	sub, _ := hub.Subscribe()
	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Subscribers())
	}
}

func TestHubCloseEndsStreams(t *testing.T) {
	hub := NewHub(1)
	sub, _ := hub.Subscribe()
	hub.Close()
	hub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel after hub close")
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close after hub close failed: %v", err)
	}
	if _, err := hub.Subscribe(); !errors.Is(err, ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}
	hub.Publish(AuthEvent{Kind: EventSignedIn})
}

func TestErrorImplementsDeclared(t *testing.T) {
	err := &Error{Status: 400, Code: "invalid_credentials", Message: "Invalid login credentials"}
	if err.Error() != "Invalid login credentials" || err.StatusCode() != 400 || err.ErrorCode() != "invalid_credentials" {
		t.Fatalf("unexpected error accessors: %q %d %q", err.Error(), err.StatusCode(), err.ErrorCode())
	}
	if (&Error{Status: 503}).Error() != "backend returned status 503" {
		t.Fatal("expected status fallback message")
	}
}
