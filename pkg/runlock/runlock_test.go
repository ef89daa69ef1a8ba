package runlock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client, skipping when no local Redis
// is available. Container-backed coverage lives in tests/integration.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("dataset-sync:test:run-lock:%s", t.Name())
}

func TestLock_AcquireRelease(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	lock := New(client, testKey(t), time.Minute)
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	// Released lock can be taken again.
	second := New(client, testKey(t), time.Minute)
	if err := second.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestLock_Contention(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	first := New(client, testKey(t), time.Minute)
	if err := first.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	second := New(client, testKey(t), time.Minute)
	if err := second.Acquire(ctx); !errors.Is(err, ErrLockHeld) {
		t.Errorf("Acquire() under contention error = %v, want ErrLockHeld", err)
	}
}

func TestLock_ReleaseOnlyOwnToken(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	holder := New(client, testKey(t), time.Minute)
	if err := holder.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// A different lock instance releasing must not free the holder's lock.
	stranger := New(client, testKey(t), time.Minute)
	if err := stranger.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	contender := New(client, testKey(t), time.Minute)
	if err := contender.Acquire(ctx); !errors.Is(err, ErrLockHeld) {
		t.Errorf("lock was freed by a non-owner: Acquire() error = %v, want ErrLockHeld", err)
	}
}

func TestLock_TTLExpiry(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	short := New(client, testKey(t), 50*time.Millisecond)
	if err := short.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	next := New(client, testKey(t), time.Minute)
	if err := next.Acquire(ctx); err != nil {
		t.Errorf("Acquire() after TTL expiry error = %v", err)
	}
}
