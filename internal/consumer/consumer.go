// Package consumer implements the stream consumer: ensure a consumer group
// exists, recover pending entries left by a prior crash, then loop reading
// and acknowledging new entries under a stable name.
package consumer

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/metrics"
)

const (
	pendingBatchSize = 50
	readBatchSize    = 50
	readBlock        = 5 * time.Second
)

// Handler processes one decoded observation. Consumer acknowledges the
// stream entry only when Handler returns nil.
type Handler func(ctx context.Context, obs domain.Observation) error

// Consumer runs the two-phase read loop against one stream/group/consumer
// triple.
type Consumer struct {
	stream   broker.StreamBroker
	name     string
	group    string
	consumer string
	handler  Handler
	lg       zerolog.Logger
}

// New builds a Consumer. consumerName should be stable across restarts so
// pending entries left by a crash are redelivered to the same identity.
func New(s broker.StreamBroker, streamName, group, consumerName string, handler Handler, lg zerolog.Logger) *Consumer {
	return &Consumer{
		stream:   s,
		name:     streamName,
		group:    group,
		consumer: consumerName,
		handler:  handler,
		lg:       lg.With().Str("component", "consumer").Str("consumer_name", consumerName).Logger(),
	}
}

// Serve implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	if err := c.stream.EnsureConsumerGroup(ctx, c.name, c.group); err != nil {
		return err
	}

	if err := c.drainPending(ctx); err != nil {
		c.lg.Warn().Err(err).Msg("pending recovery interrupted")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		entries, err := c.stream.ReadNew(ctx, c.name, c.group, c.consumer, readBatchSize, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.lg.Warn().Err(err).Msg("read new failed")
			continue
		}

		for _, entry := range entries {
			c.process(ctx, entry)
		}
	}
}

// drainPending reads the consumer's previously-delivered, unacknowledged
// entries until the pending list is exhausted. It paginates by start ID
// rather than always re-reading from the beginning of the pending list, so
// an entry that stays pending (a rejected payload, or a handler that keeps
// failing) doesn't make every subsequent page return that same entry again
// and spin forever without reaching phase two's new-entry reads.
func (c *Consumer) drainPending(ctx context.Context) error {
	start := "0"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		entries, err := c.stream.ReadPending(ctx, c.name, c.group, c.consumer, start, pendingBatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		for _, entry := range entries {
			c.process(ctx, entry)
		}

		start = entries[len(entries)-1].ID
		if int64(len(entries)) < pendingBatchSize {
			return nil
		}
	}
}

func (c *Consumer) process(ctx context.Context, entry broker.StreamEntry) {
	obs, err := decode(entry.Fields)
	if err != nil {
		// A present but unparseable recorded_at would corrupt the store's
		// time axis if defaulted; reject the entry and leave it pending
		// rather than writing a garbage timestamp.
		c.lg.Warn().Err(err).Str("entry_id", entry.ID).Msg("rejecting entry with malformed recorded_at")
		metrics.ConsumerEntriesProcessed.WithLabelValues("rejected").Inc()
		return
	}

	if err := c.handler(ctx, obs); err != nil {
		c.lg.Warn().Err(err).Str("entry_id", entry.ID).Msg("handler failed, leaving entry pending")
		metrics.ConsumerEntriesProcessed.WithLabelValues("pending").Inc()
		return
	}

	if err := c.stream.Ack(ctx, c.name, c.group, entry.ID); err != nil {
		c.lg.Warn().Err(err).Str("entry_id", entry.ID).Msg("ack failed")
		return
	}
	metrics.ConsumerEntriesProcessed.WithLabelValues("acked").Inc()
}

// decode parses a stream entry's string fields into an Observation, filling
// a default for any missing key (city "unknown", numerics 0, condition
// "unknown", timestamp now). A recorded_at that is present but fails to
// parse is reported as an error rather than defaulted, since a
// silently-wrong timestamp would corrupt the store's time axis.
func decode(fields map[string]string) (domain.Observation, error) {
	recordedAt, err := timeOr(fields, "recorded_at")
	if err != nil {
		return domain.Observation{}, err
	}

	return domain.Observation{
		City:        stringOr(fields, "city_name", "unknown"),
		Latitude:    floatOr(fields, "latitude", 0),
		Longitude:   floatOr(fields, "longitude", 0),
		Temperature: floatOr(fields, "temperature", 0),
		Condition:   stringOr(fields, "weather_condition", "unknown"),
		RecordedAt:  recordedAt,
	}, nil
}

func stringOr(fields map[string]string, key, fallback string) string {
	if v, ok := fields[key]; ok && v != "" {
		return v
	}
	return fallback
}

func floatOr(fields map[string]string, key string, fallback float64) float64 {
	v, ok := fields[key]
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func timeOr(fields map[string]string, key string) (time.Time, error) {
	v, ok := fields[key]
	if !ok || v == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339, v)
}
