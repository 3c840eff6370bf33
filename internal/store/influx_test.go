package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/domain"
)

type fakePointWriter struct {
	mu     sync.Mutex
	writes [][]*write.Point
}

func (f *fakePointWriter) WritePoint(ctx context.Context, points ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, points)
	return nil
}

func (f *fakePointWriter) totalPoints() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, batch := range f.writes {
		n += len(batch)
	}
	return n
}

func TestWriter_FlushesAtThreshold(t *testing.T) {
	api := &fakePointWriter{}
	w := newWithAPI(api, zerolog.Nop())

	for i := 0; i < flushSize; i++ {
		w.Write(domain.Observation{City: "Testville", RecordedAt: time.Now()})
	}

	if api.totalPoints() != flushSize {
		t.Fatalf("expected %d points flushed at threshold, got %d", flushSize, api.totalPoints())
	}
}

func TestWriter_BelowThresholdStaysBuffered(t *testing.T) {
	api := &fakePointWriter{}
	w := newWithAPI(api, zerolog.Nop())

	w.Write(domain.Observation{City: "Testville", RecordedAt: time.Now()})

	if api.totalPoints() != 0 {
		t.Fatalf("expected nothing flushed yet, got %d", api.totalPoints())
	}
}

func TestWriter_CloseFlushesRemainder(t *testing.T) {
	api := &fakePointWriter{}
	w := newWithAPI(api, zerolog.Nop())

	w.Write(domain.Observation{City: "Testville", RecordedAt: time.Now()})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if api.totalPoints() != 1 {
		t.Fatalf("expected 1 point flushed on close, got %d", api.totalPoints())
	}
}

func TestWriter_Serve_FlushesOnInterval(t *testing.T) {
	api := &fakePointWriter{}
	w := newWithAPI(api, zerolog.Nop())
	w.Write(domain.Observation{City: "Testville", RecordedAt: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), flushInterval+500*time.Millisecond)
	defer cancel()
	_ = w.Serve(ctx)

	if api.totalPoints() != 1 {
		t.Fatalf("expected interval flush to deliver 1 point, got %d", api.totalPoints())
	}
}
