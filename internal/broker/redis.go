package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript implements the bucket's atomic refill-and-spend algorithm as
// a single server-side script, so concurrent workers cannot double-spend the
// same tokens via a read-modify-write race.
//
// KEYS[1]: bucket hash key
// ARGV[1]: capacity
// ARGV[2]: refill rate (tokens/sec)
// ARGV[3]: now (unix seconds, float)
var acquireScript = redis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill'))
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

if tokens == nil then tokens = capacity end
if last == nil then last = now end

local elapsed = now - last
if elapsed < 0 then elapsed = 0 end

tokens = math.min(capacity, tokens + elapsed * rate)

local granted = 0
if tokens >= 1 then
	tokens = tokens - 1
	granted = 1
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('EXPIRE', KEYS[1], 60)

return granted
`)

const queueKey = "weather:locations:queue"
const cycleIDKey = "weather:cycle:id"
const cycleStartKey = "weather:cycle:start_ms"

// RedisBroker implements Broker against a real Redis (or Redis-protocol
// compatible) server via go-redis.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker dials the given connection URL (redis://host:port/db).
func NewRedisBroker(ctx context.Context, url string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	return &RedisBroker{client: client}, nil
}

func wrapUnavailable(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
}

func (b *RedisBroker) RefreshQueue(ctx context.Context, startMs int64, jobs [][]byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, queueKey)
		if len(jobs) > 0 {
			values := make([]interface{}, len(jobs))
			for i, j := range jobs {
				values[i] = j
			}
			pipe.LPush(ctx, queueKey, values...)
		}
		pipe.Set(ctx, cycleStartKey, startMs, 0)
		return nil
	})
	return wrapUnavailable(err)
}

func (b *RedisBroker) PopJob(ctx context.Context, timeout time.Duration) ([]byte, error) {
	result, err := b.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	return []byte(result[1]), nil
}

func (b *RedisBroker) NextCycleID(ctx context.Context) (int64, error) {
	id, err := b.client.Incr(ctx, cycleIDKey).Result()
	return id, wrapUnavailable(err)
}

func (b *RedisBroker) CurrentCycle(ctx context.Context) (int64, int64, error) {
	vals, err := b.client.MGet(ctx, cycleIDKey, cycleStartKey).Result()
	if err != nil {
		return 0, 0, wrapUnavailable(err)
	}
	id := toInt64(vals[0])
	startMs := toInt64(vals[1])
	return id, startMs, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		var n int64
		fmt.Sscanf(t, "%d", &n)
		return n
	case int64:
		return t
	default:
		return 0
	}
}

func (b *RedisBroker) AcquireToken(ctx context.Context, bucketKey string, capacity, refillRate float64) (bool, error) {
	now := float64(time.Now().UnixNano()) / 1e9
	result, err := acquireScript.Run(ctx, b.client, []string{bucketKey}, capacity, refillRate, now).Int()
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return result == 1, nil
}

func (b *RedisBroker) CooldownTTL(ctx context.Context, cooldownKey string) (time.Duration, error) {
	ttl, err := b.client.PTTL(ctx, cooldownKey).Result()
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (b *RedisBroker) NotifyThrottled(ctx context.Context, cooldownKey string, ttl time.Duration) error {
	err := b.client.SetNX(ctx, cooldownKey, "1", ttl).Err()
	return wrapUnavailable(err)
}

func (b *RedisBroker) AppendStream(ctx context.Context, stream string, fields map[string]interface{}) (string, error) {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	return id, wrapUnavailable(err)
}

func (b *RedisBroker) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return wrapUnavailable(err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// noBlock is passed as the Block duration to suppress redis's BLOCK clause
// entirely (go-redis only omits BLOCK when the value is negative; zero means
// "block forever").
const noBlock = -1 * time.Millisecond

func (b *RedisBroker) ReadPending(ctx context.Context, stream, group, consumer, start string, count int64) ([]StreamEntry, error) {
	return b.readGroup(ctx, stream, group, consumer, start, count, noBlock)
}

func (b *RedisBroker) ReadNew(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]StreamEntry, error) {
	return b.readGroup(ctx, stream, group, consumer, ">", count, block)
}

func (b *RedisBroker) readGroup(ctx context.Context, stream, group, consumer, id string, count int64, block time.Duration) ([]StreamEntry, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    block,
		NoAck:    false,
	}).Result()

	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}

	var entries []StreamEntry
	for _, s := range res {
		for _, msg := range s.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if sv, ok := v.(string); ok {
					fields[k] = sv
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			entries = append(entries, StreamEntry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

func (b *RedisBroker) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return wrapUnavailable(b.client.XAck(ctx, stream, group, ids...).Err())
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// Ping reports whether the connection to Redis is alive.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return wrapUnavailable(b.client.Ping(ctx).Err())
}
