package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/locations"
)

type fakeQueueBroker struct {
	mu          sync.Mutex
	cycleID     int64
	cycleStart  int64
	refreshes   int
	lastJobsLen int
}

func (f *fakeQueueBroker) RefreshQueue(ctx context.Context, startMs int64, jobs [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	f.lastJobsLen = len(jobs)
	f.cycleStart = startMs
	return nil
}

func (f *fakeQueueBroker) PopJob(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return nil, nil
}

func (f *fakeQueueBroker) NextCycleID(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycleID++
	return f.cycleID, nil
}

func (f *fakeQueueBroker) CurrentCycle(ctx context.Context) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycleID, f.cycleStart, nil
}

func TestScheduler_RunsOneCycleImmediately(t *testing.T) {
	fb := &fakeQueueBroker{}
	s := New(fb, zerolog.Nop())

	if err := s.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}

	if fb.refreshes != 1 {
		t.Fatalf("expected 1 refresh, got %d", fb.refreshes)
	}
	if fb.lastJobsLen != locations.Count {
		t.Fatalf("expected %d jobs, got %d", locations.Count, fb.lastJobsLen)
	}
	if fb.cycleID != 1 {
		t.Fatalf("expected cycle id 1, got %d", fb.cycleID)
	}
}

func TestScheduler_Serve_StopsOnContextCancel(t *testing.T) {
	fb := &fakeQueueBroker{}
	s := New(fb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after context cancellation")
	}

	if fb.refreshes < 1 {
		t.Fatalf("expected at least 1 refresh before cancellation, got %d", fb.refreshes)
	}
}

func TestNextMinuteBoundary_AlwaysInFuture(t *testing.T) {
	now := time.Now()
	boundary := nextMinuteBoundary(now)
	if !boundary.After(now) {
		t.Fatalf("boundary %v not after now %v", boundary, now)
	}
	if boundary.Second() != 0 {
		t.Fatalf("boundary not aligned to minute: %v", boundary)
	}
}
