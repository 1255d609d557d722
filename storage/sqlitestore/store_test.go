package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/authctl/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Get(ctx, "session"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, "session", []byte("v1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, "session", []byte("v2")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, err := s.Get(ctx, "session")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("expected v2, got %q", got)
	}

	if err := s.Delete(ctx, "session"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "session"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("persisted")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "persisted" {
		t.Fatalf("expected persisted value, got %q", got)
	}
}

func TestStoreWithSealed(t *testing.T) {
	s := newTestStore(t)
	sealed, err := storage.NewSealed(s, make([]byte, 32))
	if err != nil {
		t.Fatalf("NewSealed failed: %v", err)
	}
	ctx := context.Background()
	if err := sealed.Set(ctx, "k", []byte("secret")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := sealed.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "secret" {
		t.Fatalf("expected secret, got %q", got)
	}
}
