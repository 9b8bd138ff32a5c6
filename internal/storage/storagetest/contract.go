// Package storagetest provides a behavioural contract for presence stores.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/sockmesh-go/internal/core/domain"
	"github.com/yndnr/sockmesh-go/internal/storage"
)

// NewSession builds a connected session for contract tests.
func NewSession(t *testing.T, connectedAt int64) *domain.Session {
	t.Helper()
	s, err := domain.NewSession("127.0.0.1:1234", "storagetest", 4)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	s.State = domain.StateConnected
	s.ConnectedAt = connectedAt
	s.LastActive = connectedAt
	return s
}

// RunPresenceContract exercises the PresenceStore contract against store.
// The store must be empty.
func RunPresenceContract(t *testing.T, store storage.PresenceStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UnixMilli()

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(ctx); err != nil {
			t.Fatalf("Ping() error = %v", err)
		}
	})

	t.Run("PutGet", func(t *testing.T) {
		s := NewSession(t, base)
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != s.ID || got.State != domain.StateConnected || got.RemoteAddr != s.RemoteAddr {
			t.Errorf("Get() = %+v, want %+v", got, s)
		}
		if err := store.Delete(ctx, s.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := store.Get(ctx, "smss-missing"); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("PutInvalid", func(t *testing.T) {
		if err := store.Put(ctx, &domain.Session{}); !errors.Is(err, domain.ErrMissingArgument) {
			t.Errorf("Put(empty) error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("PutRefreshes", func(t *testing.T) {
		s := NewSession(t, base)
		if err := store.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
		s.LastActive = base + 1000
		if err := store.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
		got, err := store.Get(ctx, s.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.LastActive != base+1000 {
			t.Errorf("LastActive = %d, want %d", got.LastActive, base+1000)
		}
		_ = store.Delete(ctx, s.ID)
	})

	t.Run("ListOrdered", func(t *testing.T) {
		newer := NewSession(t, base+20)
		older := NewSession(t, base+10)
		for _, s := range []*domain.Session{newer, older} {
			if err := store.Put(ctx, s); err != nil {
				t.Fatal(err)
			}
		}

		list, err := store.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("List() len = %d, want 2", len(list))
		}
		if list[0].ID != older.ID || list[1].ID != newer.ID {
			t.Errorf("List() not ordered by connected_at")
		}

		_ = store.Delete(ctx, older.ID)
		_ = store.Delete(ctx, newer.ID)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := store.Delete(ctx, "smss-missing"); err != nil {
			t.Errorf("Delete(missing) error = %v", err)
		}
		list, err := store.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 0 {
			t.Errorf("List() len = %d after deletes, want 0", len(list))
		}
	})
}
