package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	value := []byte("v1")
	if err := m.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value[0] = 'x'
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected stored copy, got %q", got)
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete of missing key failed: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty storage, got %d", m.Len())
	}
}

func TestMemoryZeroValue(t *testing.T) {
	var m Memory
	if err := m.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set on zero value failed: %v", err)
	}
}

func TestSealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	s, err := NewSealed(backing, testKey(t))
	if err != nil {
		t.Fatalf("NewSealed failed: %v", err)
	}

	plain := []byte(`{"access_token":"secret"}`)
	if err := s.Set(ctx, "session", plain); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	raw, _ := backing.Get(ctx, "session")
	if bytes.Contains(raw, []byte("secret")) {
		t.Fatal("expected backing value to be encrypted")
	}

	got, err := s.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("expected %q, got %q", plain, got)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound passthrough, got %v", err)
	}
}

func TestSealedRejectsTamperingAndKeySwap(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	s, _ := NewSealed(backing, testKey(t))
	_ = s.Set(ctx, "a", []byte("value"))

	raw, _ := backing.Get(ctx, "a")
	_ = backing.Set(ctx, "b", raw)
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected value moved to another key to fail, got %v", err)
	}

	raw[len(raw)-1] ^= 0xFF
	_ = backing.Set(ctx, "a", raw)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected tampered value to fail, got %v", err)
	}

	_ = backing.Set(ctx, "short", []byte("x"))
	if _, err := s.Get(ctx, "short"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected short value to fail, got %v", err)
	}

	other, _ := NewSealed(backing, testKey(t))
	_ = s.Set(ctx, "a", []byte("value"))
	if _, err := other.Get(ctx, "a"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected wrong key to fail, got %v", err)
	}
}

func TestNewSealedValidatesKey(t *testing.T) {
	if _, err := NewSealed(NewMemory(), []byte("short")); err == nil {
		t.Fatal("expected short key to be rejected")
	}
	if _, err := NewSealed(nil, testKey(t)); err == nil {
		t.Fatal("expected nil backing store to be rejected")
	}
	if _, err := NewSealedBase64(NewMemory(), "not base64!"); err == nil {
		t.Fatal("expected invalid base64 to be rejected")
	}
	if _, err := NewSealedBase64(NewMemory(), base64.StdEncoding.EncodeToString(testKey(t))); err != nil {
		t.Fatalf("NewSealedBase64 failed: %v", err)
	}
}
