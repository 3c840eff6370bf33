// Package store implements the time-series writer: a buffered writer over
// InfluxDB, relying on Influx's own last-write-wins
// deduplication by (measurement, tag set, timestamp) to absorb the
// at-least-once duplicates the stream consumer can produce.
package store

import (
	"context"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/metrics"
)

const (
	measurement   = "weather"
	flushSize     = 100
	flushInterval = time.Second
)

// pointWriter is the slice of the Influx client this package depends on,
// narrowed so tests can substitute a fake instead of a live server.
type pointWriter interface {
	WritePoint(ctx context.Context, points ...*write.Point) error
}

// Writer buffers points and flushes them to InfluxDB when the buffer
// reaches flushSize or flushInterval elapses, whichever comes first.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	lg     zerolog.Logger

	mu     sync.Mutex
	buffer []*write.Point
}

// New connects to InfluxDB at url with token, scoped to org/bucket. Points
// are written with millisecond precision, so a point's timestamp is the
// observation's recorded_at in milliseconds since the epoch.
func New(url, token, org, bucket string, lg zerolog.Logger) *Writer {
	opts := influxdb2.DefaultOptions().SetPrecision(time.Millisecond)
	client := influxdb2.NewClientWithOptions(url, token, opts)
	return &Writer{
		client: client,
		api:    client.WriteAPIBlocking(org, bucket),
		lg:     lg.With().Str("component", "store").Logger(),
	}
}

// newWithAPI builds a Writer over an already-constructed pointWriter,
// letting tests inject a fake without a live InfluxDB instance.
func newWithAPI(api pointWriter, lg zerolog.Logger) *Writer {
	return &Writer{api: api, lg: lg}
}

// Write buffers an observation as a point. Below flushSize it returns
// without touching the network. The Write call that brings the buffer to
// flushSize flushes it synchronously on the caller's goroutine, so that
// call returns only after the store's write completes or fails.
func (w *Writer) Write(obs domain.Observation) {
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{
			"city_name":         obs.City,
			"weather_condition": obs.Condition,
		},
		map[string]interface{}{
			"temperature": obs.Temperature,
			"latitude":    obs.Latitude,
			"longitude":   obs.Longitude,
		},
		obs.RecordedAt,
	)

	w.mu.Lock()
	w.buffer = append(w.buffer, p)
	shouldFlush := len(w.buffer) >= flushSize
	w.mu.Unlock()

	if shouldFlush {
		w.flush(context.Background())
	}
}

// Serve implements suture.Service: a background loop that flushes on a
// fixed interval so buffered points never wait longer than flushInterval.
func (w *Writer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	points := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if err := w.api.WritePoint(ctx, points...); err != nil {
		w.lg.Warn().Err(err).Int("points", len(points)).Msg("flush failed")
		metrics.WriterFlushes.WithLabelValues("error").Inc()
		return
	}
	metrics.WriterFlushes.WithLabelValues("ok").Inc()
}

// Close flushes any buffered points and releases the underlying transport.
func (w *Writer) Close() error {
	w.flush(context.Background())
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
