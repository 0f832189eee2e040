package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"hearth/api/internal/store"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs, s
}

func TestSaveAndLookup(t *testing.T) {
	rs, _ := setupTestStore(t)
	ctx := context.Background()

	user := store.User{ID: "user-123", DisplayName: "Alice", Email: "alice@example.com"}
	if err := rs.Save(ctx, "token-1", user, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := rs.Lookup(ctx, "token-1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.ID != user.ID || got.DisplayName != user.DisplayName || got.Email != user.Email {
		t.Errorf("unexpected user: %+v", got)
	}
}

func TestLookupExpiredToken(t *testing.T) {
	rs, s := setupTestStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, "token-exp", store.User{ID: "user-1"}, time.Millisecond); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	s.FastForward(2 * time.Millisecond)

	if _, err := rs.Lookup(ctx, "token-exp"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestLookupUnknownToken(t *testing.T) {
	rs, _ := setupTestStore(t)

	if _, err := rs.Lookup(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	rs, _ := setupTestStore(t)
	ctx := context.Background()

	if err := rs.Save(ctx, "token-r", store.User{ID: "user-1"}, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := rs.Revoke(ctx, "token-r"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := rs.Lookup(ctx, "token-r"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op.
	if err := rs.Revoke(ctx, "token-r"); err != nil {
		t.Errorf("second Revoke failed: %v", err)
	}
}
