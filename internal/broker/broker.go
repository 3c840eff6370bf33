// Package broker defines the shared-state contract the fetcher and processor
// both depend on: a work queue, atomic key operations with TTL, and an
// append-only stream with consumer-group semantics.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrBrokerUnavailable wraps any transport-level failure talking to the
// broker. Data-plane call sites log and continue rather than treating it as
// fatal; a failed first connect at process startup is fatal.
var ErrBrokerUnavailable = errors.New("broker: unavailable")

// StreamRaw is the name of the append-only stream workers publish raw
// observations to and the consumer reads from.
const StreamRaw = "weather:raw"

// StreamEntry is one message read from the stream, with its field map
// decoded into strings (values are always strings on the wire; numeric
// parsing with fallback happens in the consumer, not here).
type StreamEntry struct {
	ID     string
	Fields map[string]string
}

// QueueBroker is the work-queue half of the contract.
type QueueBroker interface {
	// RefreshQueue atomically deletes the queue's current content, pushes
	// jobs in one pipelined batch, and records startMs as the new cycle's
	// start timestamp, all in the same round trip. Folding the start
	// timestamp into this call means a worker never pops a job of the new
	// queue while the previous cycle's start time is still recorded. The
	// cycle ID is not part of this batch: NextCycleID increments it in its
	// own round trip.
	RefreshQueue(ctx context.Context, startMs int64, jobs [][]byte) error

	// PopJob blocks up to timeout for one job. A nil slice with a nil error
	// means the timeout elapsed with nothing to pop.
	PopJob(ctx context.Context, timeout time.Duration) ([]byte, error)

	// NextCycleID atomically increments and returns the cycle counter.
	NextCycleID(ctx context.Context) (int64, error)

	// CurrentCycle reads the most recently recorded cycle ID and start.
	CurrentCycle(ctx context.Context) (id int64, startMs int64, err error)
}

// RateLimitBroker is the token-bucket and cooldown half of the contract.
type RateLimitBroker interface {
	// AcquireToken evaluates the bucket's refill-and-spend script atomically
	// and reports whether a token was granted.
	AcquireToken(ctx context.Context, bucketKey string, capacity, refillRate float64) (granted bool, err error)

	// CooldownTTL returns the cooldown key's remaining TTL, or zero if the
	// key is absent (no active cooldown).
	CooldownTTL(ctx context.Context, cooldownKey string) (time.Duration, error)

	// NotifyThrottled sets the cooldown key with the given TTL only if it is
	// absent, so the first throttle wins.
	NotifyThrottled(ctx context.Context, cooldownKey string, ttl time.Duration) error
}

// StreamBroker is the append-only stream half of the contract.
type StreamBroker interface {
	// AppendStream appends one entry with the given fields and returns its
	// entry ID.
	AppendStream(ctx context.Context, stream string, fields map[string]interface{}) (string, error)

	// EnsureConsumerGroup creates the named group on the stream if it does
	// not already exist. A pre-existing group is not an error.
	EnsureConsumerGroup(ctx context.Context, stream, group string) error

	// ReadPending reads entries previously delivered to consumer but not yet
	// acknowledged, starting strictly after start (use "0" to read from the
	// beginning of the consumer's pending list). An empty, nil-error result
	// means there are no more pending entries after start. Callers paginate
	// by passing the last entry ID seen as the next call's start, so an
	// entry that was read but never acknowledged (rejected payload, failed
	// handler) doesn't cause the same page to be returned forever.
	ReadPending(ctx context.Context, stream, group, consumer, start string, count int64) ([]StreamEntry, error)

	// ReadNew blocks up to block for new entries delivered to consumer for
	// the first time.
	ReadNew(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error)

	// Ack acknowledges entries, removing them from the group's pending list.
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// Broker is the full contract both processes depend on.
type Broker interface {
	QueueBroker
	RateLimitBroker
	StreamBroker
	Close() error
	Ping(ctx context.Context) error
}
