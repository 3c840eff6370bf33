// Package config loads the environment-variable surface both binaries need
// to start: broker and store connection strings, the metrics listener port,
// log format, and the fetcher's worker pool size. Environment variables are
// the only supported source; there is no config file.
package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	defaultMetricsPort = "3000"
	defaultWorkerCount = 50
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"
)

// Config holds both processes' full startup surface. cmd/fetcher and
// cmd/processor each read only the fields relevant to them.
type Config struct {
	RedisURL string `koanf:"redis_url"`

	InfluxURL    string `koanf:"influx_url"`
	InfluxToken  string `koanf:"influx_token"`
	InfluxOrg    string `koanf:"influx_org"`
	InfluxBucket string `koanf:"influx_bucket"`

	UseMock bool `koanf:"use_mock"`

	MetricsPort string `koanf:"metrics_port"`
	WorkerCount int    `koanf:"worker_count"`

	LogFormat string `koanf:"log_format"`
	LogLevel  string `koanf:"log_level"`
}

// Load reads the process environment into a Config, applying each
// component's documented default for anything left unset.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("config: load env: %w", err)
	}

	cfg := Config{
		RedisURL:     k.String("REDIS_URL"),
		InfluxURL:    k.String("INFLUX_URL"),
		InfluxToken:  k.String("INFLUX_TOKEN"),
		InfluxOrg:    k.String("INFLUX_ORG"),
		InfluxBucket: k.String("INFLUX_BUCKET"),
		UseMock:      k.Bool("USE_MOCK"),
		MetricsPort:  k.String("METRICS_PORT"),
		WorkerCount:  k.Int("WORKER_COUNT"),
		LogFormat:    k.String("LOG_FORMAT"),
		LogLevel:     k.String("LOG_LEVEL"),
	}

	if cfg.MetricsPort == "" {
		cfg.MetricsPort = defaultMetricsPort
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = defaultWorkerCount
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaultLogFormat
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	return cfg, nil
}
