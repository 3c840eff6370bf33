// Package analytics implements per-second bucket accounting and reporting.
// Buckets are per-process, mutated only by fetch workers and drained by the
// reporter, so a simple mutex suffices.
package analytics

import (
	"math"
	"sort"
	"sync"

	"github.com/weathersync/weathersync/internal/domain"
)

// bucketKey identifies one (cycle, second-offset) bucket.
type bucketKey struct {
	cycle  int64
	offset int64
}

type bucket struct {
	ok, fail, timeout int
	latenciesMs       []float64
}

// Recorder accumulates per-second outcome counts and latencies, keyed by
// cycle so a cycle rollover never mixes its buckets with the next one's.
type Recorder struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket

	cycleOK    map[int64]int
	cycleTotal map[int64]int
}

// New builds an empty Recorder.
func New() *Recorder {
	return &Recorder{
		buckets:    make(map[bucketKey]*bucket),
		cycleOK:    make(map[int64]int),
		cycleTotal: make(map[int64]int),
	}
}

// RecordSuccess records a successful fetch's latency into the bucket for
// (cycle, offset) and the cycle's cumulative ok/total counters.
func (r *Recorder) RecordSuccess(cycle, offset int64, latencyMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucketFor(cycle, offset)
	b.ok++
	b.latenciesMs = append(b.latenciesMs, latencyMs)

	r.cycleOK[cycle]++
	r.cycleTotal[cycle]++
}

// RecordFailure records a classified failure (throttled, timeout, or other)
// into the bucket and the cycle's total counter.
func (r *Recorder) RecordFailure(cycle, offset int64, outcome domain.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.bucketFor(cycle, offset)
	switch outcome {
	case domain.OutcomeTimeout:
		b.timeout++
	default:
		b.fail++
	}

	r.cycleTotal[cycle]++
}

func (r *Recorder) bucketFor(cycle, offset int64) *bucket {
	key := bucketKey{cycle: cycle, offset: offset}
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{}
		r.buckets[key] = b
	}
	return b
}

// Snapshot is one drained second's report.
type Snapshot struct {
	OK, Fail, Timeout int
	CycleOK           int
	CycleTotal        int
	AvgLatencyMs      float64
	P99LatencyMs      float64
}

// Drain removes and returns the bucket for (cycle, offset), along with the
// cycle's current cumulative counters. Calling Drain on an empty bucket
// returns a zero Snapshot holding only the cycle totals.
func (r *Recorder) Drain(cycle, offset int64) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bucketKey{cycle: cycle, offset: offset}
	b, ok := r.buckets[key]
	if ok {
		delete(r.buckets, key)
	} else {
		b = &bucket{}
	}

	return Snapshot{
		OK:           b.ok,
		Fail:         b.fail,
		Timeout:      b.timeout,
		CycleOK:      r.cycleOK[cycle],
		CycleTotal:   r.cycleTotal[cycle],
		AvgLatencyMs: average(b.latenciesMs),
		P99LatencyMs: percentile(b.latenciesMs, 0.99),
	}
}

// Reap drops every bucket and cumulative counter for a cycle other than
// activeCycle.
func (r *Recorder) Reap(activeCycle int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.buckets {
		if key.cycle != activeCycle {
			delete(r.buckets, key)
		}
	}
	for cycle := range r.cycleOK {
		if cycle != activeCycle {
			delete(r.cycleOK, cycle)
		}
	}
	for cycle := range r.cycleTotal {
		if cycle != activeCycle {
			delete(r.cycleTotal, cycle)
		}
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	// Nearest rank: the smallest value with at least p of the samples at or
	// below it.
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
