// Package worker implements the fetch worker pool: N identical loops
// popping jobs, acquiring a rate-limit token, fetching, and appending
// results to the stream.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/analytics"
	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/metrics"
	"github.com/weathersync/weathersync/internal/ratelimit"
	"github.com/weathersync/weathersync/internal/weatherclient"
)

const (
	popTimeout      = 5 * time.Second
	defaultPoolSize = 50
)

// Pool runs Count workers against a shared queue, rate limiter, and fetch
// client, executing in parallel.
type Pool struct {
	queue    broker.QueueBroker
	stream   broker.StreamBroker
	limiter  *ratelimit.Limiter
	client   weatherclient.Client
	recorder *analytics.Recorder
	lg       zerolog.Logger

	count int

	mu         sync.RWMutex
	cycleID    int64
	cycleStart int64
}

// New builds a worker Pool. count <= 0 falls back to a default of 50.
func New(queue broker.QueueBroker, stream broker.StreamBroker, limiter *ratelimit.Limiter, client weatherclient.Client, recorder *analytics.Recorder, count int, lg zerolog.Logger) *Pool {
	if count <= 0 {
		count = defaultPoolSize
	}
	return &Pool{
		queue:    queue,
		stream:   stream,
		limiter:  limiter,
		client:   client,
		recorder: recorder,
		count:    count,
		lg:       lg.With().Str("component", "worker").Logger(),
	}
}

// Serve implements suture.Service: it runs Count worker goroutines until
// ctx is cancelled, then waits for all of them to drain their current job.
func (p *Pool) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	workerLog := p.lg.With().Int("worker_id", id).Logger()
	workerLog.Debug().Msg("worker started")
	defer workerLog.Debug().Msg("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		data, err := p.queue.PopJob(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			workerLog.Warn().Err(err).Msg("pop failed")
			continue
		}
		if data == nil {
			continue // timed out with no job; retry
		}

		job, err := domain.UnmarshalJob(data)
		if err != nil {
			workerLog.Warn().Err(err).Msg("malformed job payload")
			continue
		}

		p.refreshCycleIfNeeded(ctx)
		p.handleJob(ctx, job)
	}
}

// refreshCycleIfNeeded updates the cached cycle ID and start timestamp so
// per-second bucket accounting tracks the current cycle rather than a stale
// one left over from before the last refresh.
func (p *Pool) refreshCycleIfNeeded(ctx context.Context) {
	p.mu.RLock()
	cached := p.cycleID
	p.mu.RUnlock()

	id, startMs, err := p.queue.CurrentCycle(ctx)
	if err != nil {
		return
	}
	if id == cached {
		return
	}

	p.mu.Lock()
	p.cycleID = id
	p.cycleStart = startMs
	p.mu.Unlock()
}

func (p *Pool) currentCycle() (int64, int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cycleID, p.cycleStart
}

func (p *Pool) handleJob(ctx context.Context, job domain.Job) {
	fetchStart := time.Now()

	if err := p.limiter.Acquire(ctx); err != nil {
		return // context cancelled or broker error; job is dropped, next cycle retries the location
	}

	cycleID, cycleStart := p.currentCycle()
	offset := secondOffset(fetchStart, cycleStart)

	obs, err := p.client.Fetch(ctx, job.Location())
	if err != nil {
		outcome := classify(err)
		if outcome == domain.OutcomeThrottled {
			p.limiter.NotifyThrottled(ctx)
		}
		p.recorder.RecordFailure(cycleID, offset, outcome)
		metrics.FetchAttempts.WithLabelValues(outcome.String()).Inc()
		return
	}

	if _, err := p.stream.AppendStream(ctx, broker.StreamRaw, obs.StreamFields()); err != nil {
		p.lg.Warn().Err(err).Msg("stream append failed")
		p.recorder.RecordFailure(cycleID, offset, domain.OutcomeFail)
		metrics.FetchAttempts.WithLabelValues(domain.OutcomeFail.String()).Inc()
		return
	}
	metrics.StreamAppends.Inc()

	latency := time.Since(fetchStart)
	latencyMs := float64(latency.Microseconds()) / 1000.0
	p.recorder.RecordSuccess(cycleID, offset, latencyMs)
	metrics.FetchAttempts.WithLabelValues(domain.OutcomeOK.String()).Inc()
	metrics.FetchLatencySeconds.Observe(latency.Seconds())
}

// classify maps a fetch error to one of the second-bucket outcome
// categories: throttled, timeout, or other failure.
func classify(err error) domain.Outcome {
	switch {
	case errors.Is(err, weatherclient.ErrThrottled):
		return domain.OutcomeThrottled
	case errors.Is(err, weatherclient.ErrUpstreamTimeout):
		return domain.OutcomeTimeout
	default:
		return domain.OutcomeFail
	}
}

func secondOffset(at time.Time, cycleStartMs int64) int64 {
	offset := (at.UnixMilli() - cycleStartMs) / 1000
	if offset < 0 {
		return 0
	}
	return offset
}
