package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxfill/internal/session"
)

func TestMemStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore()

	s := session.New("s1")
	s.Fields["email"] = session.FieldValue{Value: "a@b.com", Confidence: 0.9}
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// The store must hold a copy, not the caller's pointer.
	s.Fields["email"] = session.FieldValue{Value: "mutated"}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Fields["email"].Value != "a@b.com" {
		t.Errorf("expected stored copy to be isolated, got %q", got.Fields["email"].Value)
	}

	// Mutating the returned state must not affect the stored copy either.
	got.Fields["email"] = session.FieldValue{Value: "again"}
	got2, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got2.Fields["email"].Value != "a@b.com" {
		t.Errorf("Get must return copies, got %q", got2.Fields["email"].Value)
	}
}

func TestMemStoreNotFound(t *testing.T) {
	t.Parallel()
	store := session.NewMemStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreDeleteIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore()

	if err := store.Put(ctx, session.New("s1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete must succeed, got %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemStorePutRejectsInvalid(t *testing.T) {
	t.Parallel()
	s := session.New("s1")
	s.ReadyToFill = true
	s.NeedsClarification = true

	if err := session.NewMemStore().Put(context.Background(), s); err == nil {
		t.Error("expected validation error on Put")
	}
}

func TestMemStoreTTLEviction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore(session.WithTTL(50 * time.Millisecond))

	if err := store.Put(ctx, session.New("s1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("fresh entry must be found, got %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound after TTL, got %v", err)
	}
	if n := store.Len(); n != 0 {
		t.Errorf("expected 0 live sessions, got %d", n)
	}
}

func TestMemStorePutRefreshesTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore(session.WithTTL(100 * time.Millisecond))

	if err := store.Put(ctx, session.New("s1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if err := store.Put(ctx, session.New("s1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(60 * time.Millisecond)

	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Errorf("Put must restart the idle timer, got %v", err)
	}
}

func TestMemStoreSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore(session.WithTTL(10 * time.Millisecond))

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, session.New(id)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	time.Sleep(30 * time.Millisecond)

	if evicted := store.Sweep(); evicted != 3 {
		t.Errorf("expected 3 evictions, got %d", evicted)
	}
}

func TestMemStoreConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := session.New("shared")
				s.TurnCount = j
				if err := store.Put(ctx, s); err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				if _, err := store.Get(ctx, "shared"); err != nil {
					t.Errorf("Get: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
