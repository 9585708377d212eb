package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, "ss"), rdb
}

func makeSession(userID, sessionID, family string, createdAt time.Time) *Session {
	return &Session{
		SessionID:   sessionID,
		UserID:      userID,
		DeviceID:    "dev-" + sessionID,
		IPAddress:   "192.0.2.1",
		UserAgent:   "Mozilla/5.0 (X11; Linux x86_64) test",
		TokenFamily: family,
		CreatedAt:   createdAt.Unix(),
		ExpiresAt:   createdAt.Add(time.Hour).Unix(),
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam-1", time.Now())
	sess.UserAgent = strings.Repeat("x", 300) // exceeds a one-byte length

	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || got.TokenFamily != "fam-1" || got.UserAgent != sess.UserAgent {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExpiredSessionTreatedAsInvalidated(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam-1", time.Now())
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
	// Lazy expiry also removes the record and index entry.
	if exists := rdb.Exists(ctx, "ss:s1").Val(); exists != 0 {
		t.Fatal("expected expired session record to be deleted on read")
	}
	if n := rdb.ZCard(ctx, "ssu:u1").Val(); n != 0 {
		t.Fatal("expected expired session index entry to be pruned")
	}
}

func TestListByUserOrdersOldestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i, id := range []string{"s3", "s1", "s2"} {
		order := map[string]int{"s1": 0, "s2": 1, "s3": 2}[id]
		sess := makeSession("u1", id, "fam", base.Add(time.Duration(order)*time.Second))
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	sessions, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if sessions[i].SessionID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, sessions[i].SessionID)
		}
	}
}

func TestListByUserPrunesStaleIndexEntries(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam", time.Now())
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Simulate TTL expiry of the record while the index entry survives.
	rdb.Del(ctx, "ss:s1")

	sessions, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
	if n := rdb.ZCard(ctx, "ssu:u1").Val(); n != 0 {
		t.Fatal("expected stale index entry to be pruned")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam", time.Now())
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRotateTokenFamilySwapsFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam-1", time.Now())
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rotated, err := store.RotateTokenFamily(ctx, "s1", "fam-1", "fam-2")
	if err != nil {
		t.Fatalf("RotateTokenFamily failed: %v", err)
	}
	if rotated.TokenFamily != "fam-2" {
		t.Fatalf("expected fam-2, got %s", rotated.TokenFamily)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TokenFamily != "fam-2" {
		t.Fatalf("rotation not persisted, family %s", got.TokenFamily)
	}
}

func TestRotateTokenFamilyMismatchKillsSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("u1", "s1", "fam-1", time.Now())
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := store.RotateTokenFamily(ctx, "s1", "fam-1", "fam-2"); err != nil {
		t.Fatalf("RotateTokenFamily failed: %v", err)
	}

	// Replaying the superseded family is reuse: reject and delete the session.
	if _, err := store.RotateTokenFamily(ctx, "s1", "fam-1", "fam-3"); !errors.Is(err, ErrTokenFamilyMismatch) {
		t.Fatalf("expected ErrTokenFamilyMismatch, got %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected session deleted after reuse, got %v", err)
	}
}

func TestRotateTokenFamilyMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.RotateTokenFamily(context.Background(), "absent", "fam", "next"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAllForUserReturnsDeleted(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	for i := 0; i < 3; i++ {
		sess := makeSession("u1", "s"+string(rune('1'+i)), "fam", base.Add(time.Duration(i)*time.Second))
		if err := store.Save(ctx, sess, time.Hour); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	deleted, err := store.DeleteAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAllForUser failed: %v", err)
	}
	if len(deleted) != 3 {
		t.Fatalf("expected 3 deleted, got %d", len(deleted))
	}

	remaining, err := store.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining sessions, got %d", len(remaining))
	}
}
