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

// HardwareDriver selects the hardware capability implementation.
type HardwareDriver string

const (
	HardwareSimulator HardwareDriver = "simulator"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	DBBackend   DatabaseBackend
	DBDSN       string
	Hardware    HardwareDriver

	// Observer site
	LatitudeDeg  float64
	LongitudeDeg float64
	ElevationM   float64

	// Catalog and horizon inputs
	CatalogPath        string
	HorizonProfilePath string
	MinAltitudeDeg     float64 // flat horizon floor when no profile file is given

	// Safety monitor
	SafetyDebounce     int           // consecutive safe readings required after an unsafe one
	SafetyMaxAge       time.Duration // readings older than this are treated as unsafe
	SafetyPollTimeout  time.Duration
	DarkSunAltitudeDeg float64 // sun altitude below which it counts as dark
	MinDiskFreeGB      float64

	// Constraint weights
	AltitudeWeight float64
	MoonWeight     float64
	VisitedWeight  float64
	PriorityWeight float64
	MinMoonSepDeg  float64
	VisitedVeto    bool // hard-veto fully observed targets instead of penalizing

	// State machine cadence and budgets
	TickFast            time.Duration // while slewing/tracking/observing
	TickSlow            time.Duration // while sleeping/parked
	SchedulerRetryMax   int
	SchedulerRetryDelay time.Duration
	HardwareRetryMax    int
	SlewTimeout         time.Duration
	TrackingTimeout     time.Duration
	ParkTimeout         time.Duration

	// Event mirroring
	NATSEnabled bool
	NATSURL     string

	// Command lease (single-commander guarantee across instances)
	LeaseEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InstanceID    string

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("MUNINN_ENV", "development"),
		HTTPBind:    getEnv("MUNINN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("MUNINN_HTTP_PORT", 8080),
		MetricsBind: getEnv("MUNINN_METRICS_BIND", "127.0.0.1:9000"),
		DBBackend:   DatabaseBackend(getEnv("MUNINN_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("MUNINN_DB_DSN", ""),
		Hardware:    HardwareDriver(getEnv("MUNINN_HARDWARE", string(HardwareSimulator))),

		LatitudeDeg:  getEnvFloat("MUNINN_SITE_LATITUDE", 19.54),
		LongitudeDeg: getEnvFloat("MUNINN_SITE_LONGITUDE", -155.58),
		ElevationM:   getEnvFloat("MUNINN_SITE_ELEVATION", 3400),

		CatalogPath:        getEnv("MUNINN_CATALOG_PATH", ""),
		HorizonProfilePath: getEnv("MUNINN_HORIZON_PROFILE_PATH", ""),
		MinAltitudeDeg:     getEnvFloat("MUNINN_MIN_ALTITUDE_DEG", 30),

		SafetyDebounce:     getEnvInt("MUNINN_SAFETY_DEBOUNCE", 3),
		SafetyMaxAge:       getEnvDuration("MUNINN_SAFETY_MAX_AGE", 3*time.Minute),
		SafetyPollTimeout:  getEnvDuration("MUNINN_SAFETY_POLL_TIMEOUT", 10*time.Second),
		DarkSunAltitudeDeg: getEnvFloat("MUNINN_DARK_SUN_ALTITUDE_DEG", -18),
		MinDiskFreeGB:      getEnvFloat("MUNINN_MIN_DISK_FREE_GB", 10),

		AltitudeWeight: getEnvFloat("MUNINN_WEIGHT_ALTITUDE", 1.0),
		MoonWeight:     getEnvFloat("MUNINN_WEIGHT_MOON", 1.0),
		VisitedWeight:  getEnvFloat("MUNINN_WEIGHT_VISITED", 1.0),
		PriorityWeight: getEnvFloat("MUNINN_WEIGHT_PRIORITY", 1.0),
		MinMoonSepDeg:  getEnvFloat("MUNINN_MIN_MOON_SEP_DEG", 45),
		VisitedVeto:    getEnvBool("MUNINN_VISITED_VETO", true),

		TickFast:            getEnvDuration("MUNINN_TICK_FAST", 2*time.Second),
		TickSlow:            getEnvDuration("MUNINN_TICK_SLOW", 30*time.Second),
		SchedulerRetryMax:   getEnvInt("MUNINN_SCHEDULER_RETRY_MAX", 5),
		SchedulerRetryDelay: getEnvDuration("MUNINN_SCHEDULER_RETRY_DELAY", 2*time.Minute),
		HardwareRetryMax:    getEnvInt("MUNINN_HARDWARE_RETRY_MAX", 3),
		SlewTimeout:         getEnvDuration("MUNINN_SLEW_TIMEOUT", 5*time.Minute),
		TrackingTimeout:     getEnvDuration("MUNINN_TRACKING_TIMEOUT", time.Minute),
		ParkTimeout:         getEnvDuration("MUNINN_PARK_TIMEOUT", 10*time.Minute),

		NATSEnabled: getEnvBool("MUNINN_NATS_ENABLED", false),
		NATSURL:     getEnv("MUNINN_NATS_URL", "nats://localhost:4222"),

		LeaseEnabled:  getEnvBool("MUNINN_LEASE_ENABLED", false),
		RedisAddr:     getEnv("MUNINN_REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("MUNINN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("MUNINN_REDIS_DB", 0),
		InstanceID:    getEnv("MUNINN_INSTANCE_ID", ""),

		TracingEnabled:    getEnvBool("MUNINN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("MUNINN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("MUNINN_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MUNINN_DB_DSN must be provided")
	}

	if cfg.CatalogPath == "" {
		return nil, fmt.Errorf("MUNINN_CATALOG_PATH must be provided")
	}

	if cfg.LatitudeDeg < -90 || cfg.LatitudeDeg > 90 {
		return nil, fmt.Errorf("MUNINN_SITE_LATITUDE %v out of range [-90, 90]", cfg.LatitudeDeg)
	}

	if cfg.LongitudeDeg < -180 || cfg.LongitudeDeg > 180 {
		return nil, fmt.Errorf("MUNINN_SITE_LONGITUDE %v out of range [-180, 180]", cfg.LongitudeDeg)
	}

	if cfg.SafetyDebounce < 1 {
		return nil, fmt.Errorf("MUNINN_SAFETY_DEBOUNCE must be at least 1")
	}

	if cfg.MinAltitudeDeg < 0 || cfg.MinAltitudeDeg >= 90 {
		return nil, fmt.Errorf("MUNINN_MIN_ALTITUDE_DEG %v out of range [0, 90)", cfg.MinAltitudeDeg)
	}

	if cfg.AltitudeWeight < 0 || cfg.MoonWeight < 0 || cfg.VisitedWeight < 0 || cfg.PriorityWeight < 0 {
		return nil, fmt.Errorf("constraint weights must not be negative")
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.Hardware == HardwareSimulator {
		if !getEnvBool("MUNINN_ALLOW_SIMULATOR_IN_PRODUCTION", false) {
			return nil, fmt.Errorf("simulator hardware in production requires MUNINN_ALLOW_SIMULATOR_IN_PRODUCTION=true")
		}
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

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
