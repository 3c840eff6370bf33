package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRateLimitBroker is an in-memory stand-in for broker.RateLimitBroker
// that mirrors spec.md §4.1's algorithm without requiring a real broker.
type fakeRateLimitBroker struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	cooldown   time.Time
	granted    int
}

func newFakeBroker(capacity float64) *fakeRateLimitBroker {
	return &fakeRateLimitBroker{tokens: capacity, lastRefill: time.Now()}
}

func (f *fakeRateLimitBroker) AcquireToken(ctx context.Context, bucketKey string, capacity, refillRate float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(f.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	f.tokens = minFloat(capacity, f.tokens+elapsed*refillRate)
	f.lastRefill = now

	if f.tokens >= 1 {
		f.tokens--
		f.granted++
		return true, nil
	}
	return false, nil
}

func (f *fakeRateLimitBroker) CooldownTTL(ctx context.Context, cooldownKey string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := time.Until(f.cooldown)
	if remaining <= 0 {
		return 0, nil
	}
	return remaining, nil
}

func (f *fakeRateLimitBroker) NotifyThrottled(ctx context.Context, cooldownKey string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Until(f.cooldown) > 0 {
		return nil // first throttle wins
	}
	f.cooldown = time.Now().Add(ttl)
	return nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func TestAcquire_GrantsUpToCapacityThenBlocksUntilRefill(t *testing.T) {
	fb := newFakeBroker(2)
	l := New(fb, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if fb.granted != 2 {
		t.Fatalf("expected 2 grants, got %d", fb.granted)
	}

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("third acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("third acquire returned without waiting for refill: %v", elapsed)
	}
}

func TestAcquire_RespectsCooldownBeforeRetrying(t *testing.T) {
	fb := newFakeBroker(0)
	fb.cooldown = time.Now().Add(50 * time.Millisecond)
	l := New(fb, zerolog.Nop())

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Cooldown must clear before the bucket can grant anything; give it one
	// token right as the cooldown elapses.
	go func() {
		time.Sleep(60 * time.Millisecond)
		fb.mu.Lock()
		fb.tokens = 1
		fb.mu.Unlock()
	}()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("acquire returned before cooldown elapsed: %v", elapsed)
	}
}

func TestNotifyThrottled_FirstCallWins(t *testing.T) {
	fb := newFakeBroker(8)
	l := New(fb, zerolog.Nop())
	ctx := context.Background()

	l.NotifyThrottled(ctx)
	first := fb.cooldown

	time.Sleep(10 * time.Millisecond)
	l.NotifyThrottled(ctx)

	if !fb.cooldown.Equal(first) {
		t.Fatalf("second NotifyThrottled extended the cooldown: %v -> %v", first, fb.cooldown)
	}
}

func TestAcquire_ContextCancellationUnblocks(t *testing.T) {
	fb := newFakeBroker(0)
	l := New(fb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected context cancellation error, got nil")
	}
}
