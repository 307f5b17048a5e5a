package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreWithClient(client), mr
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Hour)
	if err := s.SaveRefreshSession(ctx, "hash1", "usr_1", expiresAt); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}

	user, err := s.LookupRefreshSession(ctx, "hash1")
	if err != nil {
		t.Fatalf("LookupRefreshSession: %v", err)
	}
	if user.ID != "usr_1" {
		t.Errorf("user id = %q, want usr_1", user.ID)
	}
}

func TestLookupMissingToken(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.LookupRefreshSession(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash1", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	if err := s.RevokeRefreshSession(ctx, "hash1"); err != nil {
		t.Fatalf("RevokeRefreshSession: %v", err)
	}
	if _, err := s.LookupRefreshSession(ctx, "hash1"); err == nil {
		t.Fatal("expected error after revoke")
	}
}

func TestRefreshSessionExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveRefreshSession(ctx, "hash1", "usr_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.LookupRefreshSession(ctx, "hash1"); err == nil {
		t.Fatal("expected error after expiry")
	}
}
