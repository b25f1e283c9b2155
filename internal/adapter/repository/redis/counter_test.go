package redis

import (
	"context"
	"testing"
	"time"
)

func TestCounterStore_Increment(t *testing.T) {
	client, _ := newTestRedisClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		count, err := store.Increment(ctx, "ratelimit:key-1:res-1:10:100", 10*time.Second)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}

		if count != want {
			t.Errorf("count = %d, want %d", count, want)
		}
	}
}

func TestCounterStore_IndependentKeys(t *testing.T) {
	client, _ := newTestRedisClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "window-a", time.Minute); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	count, err := store.Increment(ctx, "window-b", time.Minute)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1 (keys must not share counters)", count)
	}
}

func TestCounterStore_WindowExpiry(t *testing.T) {
	client, mr := newTestRedisClient(t)
	store := NewCounterStore(client)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "expiring", 10*time.Second); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	// A later hit must not push the expiry out.
	mr.FastForward(6 * time.Second)

	if _, err := store.Increment(ctx, "expiring", 10*time.Second); err != nil {
		t.Fatalf("Increment: %v", err)
	}

	mr.FastForward(5 * time.Second)

	count, err := store.Increment(ctx, "expiring", 10*time.Second)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}

	if count != 1 {
		t.Errorf("count = %d, want 1 (counter should reset with its window)", count)
	}
}
