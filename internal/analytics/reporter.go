package analytics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/broker"
)

const tickInterval = 500 * time.Millisecond

// Reporter is a suture.Service that polls the current cycle on a 500ms
// timer, drains each newly-completed second's bucket exactly once, and
// reaps buckets belonging to superseded cycles.
type Reporter struct {
	recorder *Recorder
	broker   broker.QueueBroker
	lg       zerolog.Logger

	lastCycle  int64
	lastOffset int64
}

// NewReporter builds a Reporter over recorder, reading cycle state from b.
func NewReporter(recorder *Recorder, b broker.QueueBroker, lg zerolog.Logger) *Reporter {
	return &Reporter{recorder: recorder, broker: b, lg: lg.With().Str("component", "analytics").Logger(), lastOffset: -1}
}

// Serve implements suture.Service.
func (r *Reporter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	cycle, startMs, err := r.broker.CurrentCycle(ctx)
	if err != nil {
		r.lg.Warn().Err(err).Msg("failed to read current cycle")
		return
	}
	if cycle == 0 {
		return // no cycle has run yet
	}

	if cycle != r.lastCycle {
		r.recorder.Reap(cycle)
		r.lastCycle = cycle
		r.lastOffset = -1
	}

	nowOffset := (time.Now().UnixMilli() - startMs) / 1000
	completedOffset := nowOffset - 1
	if completedOffset < 0 || completedOffset == r.lastOffset {
		return
	}
	r.lastOffset = completedOffset

	snap := r.recorder.Drain(cycle, completedOffset)
	r.lg.Info().
		Int64("cycle_id", cycle).
		Int64("second", completedOffset).
		Int("ok", snap.OK).
		Int("fail", snap.Fail).
		Int("timeout", snap.Timeout).
		Int("cycle_ok", snap.CycleOK).
		Int("cycle_total", snap.CycleTotal).
		Float64("avg_latency_ms", snap.AvgLatencyMs).
		Float64("p99_latency_ms", snap.P99LatencyMs).
		Msg("second report")
}
