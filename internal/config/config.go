/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string

	// SweepInterval drives the confirmed -> completed transition loop.
	SweepInterval time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Redis (resource cache, leader election)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Multi-instance: only the sweep leader runs the periodic sweep.
	LeaderElectionEnabled bool
	InstanceID            string

	// NATS event mirroring. Empty disables the mirror.
	NATSURL string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnv("PADDOCK_ENV", "development"),
		HTTPBind:      getEnv("PADDOCK_HTTP_BIND", "0.0.0.0"),
		HTTPPort:      getEnvInt("PADDOCK_HTTP_PORT", 8080),
		DBBackend:     DatabaseBackend(getEnv("PADDOCK_DB_BACKEND", string(DatabasePostgres))),
		DBDSN:         getEnv("PADDOCK_DB_DSN", ""),
		MetricsBind:   getEnv("PADDOCK_METRICS_BIND", "127.0.0.1:9000"),
		SweepInterval: time.Duration(getEnvInt("PADDOCK_SWEEP_INTERVAL_SECONDS", 60)) * time.Second,

		TracingEnabled:    getEnvBool("PADDOCK_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("PADDOCK_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("PADDOCK_TRACING_SAMPLE_RATE", 1.0),

		RedisAddr:     getEnv("PADDOCK_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("PADDOCK_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("PADDOCK_REDIS_DB", 0),

		LeaderElectionEnabled: getEnvBool("PADDOCK_LEADER_ELECTION_ENABLED", false),
		InstanceID:            getEnv("PADDOCK_INSTANCE_ID", ""),

		NATSURL: getEnv("PADDOCK_NATS_URL", ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PADDOCK_DB_DSN must be provided")
	}

	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("PADDOCK_SWEEP_INTERVAL_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}
