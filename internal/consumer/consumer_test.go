package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/domain"
)

type fakeStream struct {
	mu      sync.Mutex
	pending []broker.StreamEntry
	newMsgs []broker.StreamEntry
	acked   []string
	groupOK bool
}

func (f *fakeStream) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	f.groupOK = true
	return nil
}

func (f *fakeStream) AppendStream(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	return "", nil
}

func (f *fakeStream) ReadPending(ctx context.Context, stream, group, consumer, start string, count int64) ([]broker.StreamEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeStream) ReadNew(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]broker.StreamEntry, error) {
	f.mu.Lock()
	out := f.newMsgs
	f.newMsgs = nil
	f.mu.Unlock()
	if len(out) > 0 {
		return out, nil
	}
	// Block for a short while like a real BLOCK read, then give the caller
	// a chance to observe context cancellation.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (f *fakeStream) Ack(ctx context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func TestConsumer_DrainPending_ProcessesAndAcksUntilEmpty(t *testing.T) {
	fs := &fakeStream{pending: []broker.StreamEntry{
		{ID: "1-0", Fields: map[string]string{"city_name": "A", "recorded_at": time.Now().UTC().Format(time.RFC3339)}},
	}}

	var handled []string
	handler := func(ctx context.Context, obs domain.Observation) error {
		handled = append(handled, obs.City)
		return nil
	}

	c := New(fs, "s", "g", "consumer-1", handler, zerolog.Nop())
	if err := c.drainPending(context.Background()); err != nil {
		t.Fatalf("drainPending: %v", err)
	}

	if len(handled) != 1 || handled[0] != "A" {
		t.Fatalf("unexpected handled: %v", handled)
	}
	if len(fs.acked) != 1 || fs.acked[0] != "1-0" {
		t.Fatalf("expected ack of 1-0, got %v", fs.acked)
	}
}

func TestConsumer_Process_HandlerFailureLeavesEntryPending(t *testing.T) {
	fs := &fakeStream{}
	handler := func(ctx context.Context, obs domain.Observation) error {
		return errors.New("downstream write failed")
	}
	c := New(fs, "s", "g", "consumer-1", handler, zerolog.Nop())

	c.process(context.Background(), broker.StreamEntry{ID: "1-0", Fields: map[string]string{
		"recorded_at": time.Now().UTC().Format(time.RFC3339),
	}})

	if len(fs.acked) != 0 {
		t.Fatalf("expected no ack on handler failure, got %v", fs.acked)
	}
}

func TestConsumer_Process_RejectsMalformedRecordedAt(t *testing.T) {
	fs := &fakeStream{}
	var called bool
	handler := func(ctx context.Context, obs domain.Observation) error {
		called = true
		return nil
	}
	c := New(fs, "s", "g", "consumer-1", handler, zerolog.Nop())

	c.process(context.Background(), broker.StreamEntry{ID: "1-0", Fields: map[string]string{
		"recorded_at": "not-a-timestamp",
	}})

	if called {
		t.Fatal("handler should not run for a malformed recorded_at")
	}
	if len(fs.acked) != 0 {
		t.Fatalf("expected no ack for rejected entry, got %v", fs.acked)
	}
}

func TestDecode_FillsDefaultsForMissingFields(t *testing.T) {
	obs, err := decode(map[string]string{})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obs.City != "unknown" || obs.Condition != "unknown" || obs.Temperature != 0 {
		t.Fatalf("unexpected defaults: %+v", obs)
	}
}

func TestConsumer_Serve_EnsuresGroupThenStopsOnCancel(t *testing.T) {
	fs := &fakeStream{}
	handler := func(ctx context.Context, obs domain.Observation) error { return nil }
	c := New(fs, "s", "g", "consumer-1", handler, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}

	if !fs.groupOK {
		t.Fatal("expected EnsureConsumerGroup to be called")
	}
}
