// Package ratelimit implements the shared token-bucket acquirer. The
// bucket's state lives in the broker so every worker, and every fetcher
// replica, spends from the same budget.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weathersync/weathersync/internal/broker"
)

const (
	// BucketKey is the broker key holding the bucket's token count and last
	// refill timestamp.
	BucketKey = "rate_limiter:weather_api:bucket"
	// CooldownKey is the broker key whose presence suppresses all acquires.
	CooldownKey = "rate_limiter:weather_api:cooldown"

	// Capacity and RefillRate: a refill rate below the upstream's own limit
	// (8/s vs. 600/min = 10/s) absorbs jitter without ever exceeding the
	// upstream budget.
	Capacity   = 8.0
	RefillRate = 8.0

	cooldownTTL   = 30 * time.Second
	deniedBackoff = 40 * time.Millisecond
)

// Limiter acquires tokens from the shared bucket and installs the shared
// cooldown on throttle notification.
type Limiter struct {
	rl broker.RateLimitBroker
	lg zerolog.Logger
}

// New builds a Limiter backed by the given broker.
func New(rl broker.RateLimitBroker, lg zerolog.Logger) *Limiter {
	return &Limiter{rl: rl, lg: lg.With().Str("component", "ratelimit").Logger()}
}

// Acquire blocks until the caller holds one token. It polls the cooldown's
// remaining TTL before each attempt and sleeps exactly that long rather than
// on a fixed interval.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ttl, err := l.rl.CooldownTTL(ctx, CooldownKey)
		if err != nil {
			return err
		}
		if ttl > 0 {
			if err := sleep(ctx, ttl); err != nil {
				return err
			}
			continue
		}

		granted, err := l.rl.AcquireToken(ctx, BucketKey, Capacity, RefillRate)
		if err != nil {
			return err
		}
		if granted {
			return nil
		}

		if err := sleep(ctx, deniedBackoff); err != nil {
			return err
		}
	}
}

// NotifyThrottled installs the shared cooldown. The first throttle wins:
// concurrent calls never extend an already-active cooldown because
// NotifyThrottled sets the key only if absent.
func (l *Limiter) NotifyThrottled(ctx context.Context) {
	if err := l.rl.NotifyThrottled(ctx, CooldownKey, cooldownTTL); err != nil {
		l.lg.Warn().Err(err).Msg("failed to set cooldown flag")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
