// Command processor runs the stream consumer, the buffered InfluxDB writer,
// and the process HTTP surface under one supervisor.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/weathersync/weathersync/internal/broker"
	"github.com/weathersync/weathersync/internal/config"
	"github.com/weathersync/weathersync/internal/consumer"
	"github.com/weathersync/weathersync/internal/domain"
	"github.com/weathersync/weathersync/internal/httpapi"
	"github.com/weathersync/weathersync/internal/logging"
	"github.com/weathersync/weathersync/internal/store"
	"github.com/weathersync/weathersync/internal/supervisor"
)

const (
	consumerGroup = "weather-processors"
	// consumerName is fixed, not derived per-process-start: pending entries
	// left by a crash must be redelivered to the same consumer identity on
	// restart. A name that changed across restarts would strand those
	// entries in the previous identity's pending list forever.
	consumerName = "processor-1"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "processor: config:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	lg := logging.Logger().With().Str("service", "processor").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rb, err := broker.NewRedisBroker(ctx, cfg.RedisURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("connect to broker")
	}
	defer rb.Close()

	writer := store.New(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, lg)
	defer writer.Close()

	c := consumer.New(rb, broker.StreamRaw, consumerGroup, consumerName, func(ctx context.Context, obs domain.Observation) error {
		writer.Write(obs)
		return nil
	}, lg)

	sup := supervisor.New("processor", lg)
	sup.Add(c)
	sup.Add(writer)
	sup.Add(httpapi.New(cfg.MetricsPort, healthCheck(rb), lg))

	lg.Info().Str("consumer_name", consumerName).Msg("processor starting")

	if err := sup.Serve(ctx); err != nil {
		lg.Error().Err(err).Msg("supervisor exited")
	}
}

// healthCheck reports broker connectivity, the processor's own reading of
// "upstream reachable". The store's connectivity is not checked.
func healthCheck(rb *broker.RedisBroker) httpapi.HealthChecker {
	return func(ctx context.Context) error {
		return rb.Ping(ctx)
	}
}
