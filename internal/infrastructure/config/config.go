package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	Database  DatabaseConfig  `koanf:"database"`
	Anomaly   AnomalyConfig   `koanf:"anomaly"`
	Satellite SatelliteConfig `koanf:"satellite"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	KeyPrefix    string        `koanf:"key_prefix"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DatabaseConfig configures the optional Postgres archive of enriched
// events. An empty URL disables archiving.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// AnomalyConfig carries the tunable thresholds of the anomaly engine.
// Engine-internal constants (dedup threshold, 24h window) are not
// configuration; they live in their services.
type AnomalyConfig struct {
	Threshold                 float64 `koanf:"threshold"`
	ConvergenceRadiusKm       float64 `koanf:"convergence_radius_km"`
	MinEventsForConvergence   int     `koanf:"min_events_for_convergence"`
	ThreatEscalationThreshold float64 `koanf:"threat_escalation_threshold"`
	MinSamplesForBaseline     int     `koanf:"min_samples_for_baseline"`
	BaselineFlushEvery        int     `koanf:"baseline_flush_every"`
}

// SatelliteConfig configures the external satellite-risk collaborator. The
// pipeline treats its payload as opaque.
type SatelliteConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			KeyPrefix:    "worldwatch:",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Anomaly: AnomalyConfig{
			Threshold:                 0.7,
			ConvergenceRadiusKm:       100,
			MinEventsForConvergence:   3,
			ThreatEscalationThreshold: 1.5,
			MinSamplesForBaseline:     10,
			BaselineFlushEvery:        100,
		},
		Satellite: SatelliteConfig{
			Timeout:           10 * time.Second,
			RequestsPerSecond: 2,
			Burst:             4,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional.
	_ = k.Load(file.Provider("configs/config.yaml"), yaml.Parser())

	if err := k.Load(env.Provider("WORLDWATCH_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "WORLDWATCH_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
