// Command fetcher runs the periodic enqueue scheduler, the fetch worker
// pool, the rate limiter's shared client, the per-second analytics
// reporter, and the process HTTP surface, all under one supervisor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/weathersync/weathersync/internal/analytics"
	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/config"
	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/httpapi"
	"github.com/weathersync/weathersync/internal/locations"
	"github.com/weathersync/weathersync/internal/logging"
	"github.com/weathersync/weathersync/internal/ratelimit"
	"github.com/weathersync/weathersync/internal/scheduler"
	"github.com/weathersync/weathersync/internal/supervisor"
	"github.com/weathersync/weathersync/internal/weatherclient"
	"github.com/weathersync/weathersync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetcher: config:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	lg := logging.Logger().With().Str("service", "fetcher").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rb, err := broker.NewRedisBroker(ctx, cfg.RedisURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("connect to broker")
	}
	defer rb.Close()

	var client weatherclient.Client
	if cfg.UseMock {
		client = weatherclient.NewMockClient()
		lg.Info().Msg("mock weather client enabled")
	} else {
		client = weatherclient.NewHTTPClient(cfg.WorkerCount)
	}

	recorder := analytics.New()
	limiter := ratelimit.New(rb, lg)

	sup := supervisor.New("fetcher", lg)
	sup.Add(scheduler.New(rb, lg))
	sup.Add(worker.New(rb, rb, limiter, client, recorder, cfg.WorkerCount, lg))
	sup.Add(analytics.NewReporter(recorder, rb, lg))
	sup.Add(httpapi.New(cfg.MetricsPort, healthCheck(cfg, client), lg))

	lg.Info().Int("worker_count", cfg.WorkerCount).Int("locations", len(locations.Catalog)).Msg("fetcher starting")

	if err := sup.Serve(ctx); err != nil {
		lg.Error().Err(err).Msg("supervisor exited")
	}
}

// healthCheck reports the weather API's reachability by fetching the first
// cataloged location. In mock mode there is no upstream to check, so it
// always reports healthy.
func healthCheck(cfg config.Config, client weatherclient.Client) httpapi.HealthChecker {
	return func(ctx context.Context) error {
		if cfg.UseMock {
			return nil
		}
		var loc domain.Location
		if len(locations.Catalog) > 0 {
			loc = locations.Catalog[0]
		}
		_, err := client.Fetch(ctx, loc)
		return err
	}
}
