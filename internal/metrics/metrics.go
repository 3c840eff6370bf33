// Package metrics exposes the Prometheus instrumentation both processes
// register for their /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathersync_fetch_attempts_total",
			Help: "Total number of upstream fetch attempts by outcome",
		},
		[]string{"outcome"}, // ok, throttled, timeout, fail
	)

	FetchLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "weathersync_fetch_latency_seconds",
			Help:    "Latency of successful upstream fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathersync_queue_depth",
			Help: "Number of jobs enqueued in the most recent cycle",
		},
	)

	CycleID = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathersync_cycle_id",
			Help: "Most recently observed cycle ID",
		},
	)

	StreamAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "weathersync_stream_appends_total",
			Help: "Total number of entries appended to the raw stream",
		},
	)

	ConsumerEntriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathersync_consumer_entries_total",
			Help: "Total number of stream entries the consumer processed, by result",
		},
		[]string{"result"}, // acked, pending, rejected
	)

	WriterFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weathersync_writer_flushes_total",
			Help: "Total number of writer flushes, by result",
		},
		[]string{"result"}, // ok, error
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "weathersync_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
