// Package scheduler drives the periodic enqueue cycle: one immediate cycle
// at start, then one every 60s aligned to the wall-clock minute boundary.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/locations"
	"github.com/weathersync/weathersync/internal/logging"
	"github.com/weathersync/weathersync/internal/metrics"
)

const tickInterval = 60 * time.Second

// Scheduler is a suture.Service (Serve(ctx) error) that refreshes the work
// queue once per cycle.
type Scheduler struct {
	broker broker.QueueBroker
	lg     zerolog.Logger
}

// New builds a Scheduler backed by the given broker.
func New(b broker.QueueBroker, lg zerolog.Logger) *Scheduler {
	return &Scheduler{broker: b, lg: lg.With().Str("component", "scheduler").Logger()}
}

// Serve implements suture.Service. It runs one cycle immediately, then
// aligns subsequent cycles to the wall-clock minute boundary so operators
// see round timestamps in logs and dashboards.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.lg.Error().Err(err).Msg("initial cycle failed")
	}

	if err := sleepUntil(ctx, nextMinuteBoundary(time.Now())); err != nil {
		return nil
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.lg.Error().Err(err).Msg("cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runCycle increments the cycle-ID counter, then replaces the queue contents
// and records the start timestamp in one transaction, so workers never
// observe a partial queue refresh. The increment is a separate round trip
// before that transaction: a CurrentCycle read that lands between the two
// returns the new cycle ID with the previous cycle's start time.
func (s *Scheduler) runCycle(ctx context.Context) error {
	id, err := s.broker.NextCycleID(ctx)
	if err != nil {
		return err
	}

	// One correlation ID per cycle, attached to the context used for the
	// rest of this cycle's broker calls, so every scheduler log line for
	// this cycle can be grepped together; the cycle_id field it shares with
	// the analytics reporter's log lines links those to the same cycle.
	ctx = logging.ContextWithCorrelationID(ctx, logging.NewCorrelationID())
	lg := logging.Ctx(ctx, s.lg)

	startMs := time.Now().UnixMilli()

	jobs := make([][]byte, 0, len(locations.Catalog))
	for _, loc := range locations.Catalog {
		data, err := domain.NewJob(loc).Marshal()
		if err != nil {
			return err
		}
		jobs = append(jobs, data)
	}

	if err := s.broker.RefreshQueue(ctx, startMs, jobs); err != nil {
		return err
	}

	metrics.CycleID.Set(float64(id))
	metrics.QueueDepth.Set(float64(len(jobs)))

	lg.Info().Int64("cycle_id", id).Int64("start_ms", startMs).Int("jobs", len(jobs)).Msg("cycle enqueued")
	return nil
}

func nextMinuteBoundary(from time.Time) time.Time {
	return from.Truncate(time.Minute).Add(time.Minute)
}

func sleepUntil(ctx context.Context, at time.Time) error {
	timer := time.NewTimer(time.Until(at))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
