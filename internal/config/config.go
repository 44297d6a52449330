package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	DatabaseURL   string
	SessionPepper string

	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// Optional collaborators; empty disables them.
	RedisAddr   string
	NATSURL     string
	NATSSubject string

	ReapInterval  time.Duration
	StaleAfter    time.Duration
	FlushInterval time.Duration
	FlushTimeout  time.Duration

	SubscriberBuffer int
	MaxReportBytes   int64
}

func Load() (Config, error) {
	// Optional: load local .env for development. Missing file is fine.
	_ = godotenv.Load()

	reapSeconds := getenvIntDefault("FLEETTRACK_REAP_INTERVAL_SECONDS", 10)
	if reapSeconds < 1 {
		reapSeconds = 1
	}
	staleSeconds := getenvIntDefault("FLEETTRACK_STALE_AFTER_SECONDS", 30)
	if staleSeconds < 5 {
		staleSeconds = 5
	}
	flushSeconds := getenvIntDefault("FLEETTRACK_FLUSH_INTERVAL_SECONDS", 60)
	if flushSeconds < 5 {
		flushSeconds = 5
	}
	flushTimeout := getenvIntDefault("FLEETTRACK_FLUSH_TIMEOUT_SECONDS", 10)
	if flushTimeout < 1 {
		flushTimeout = 1
	}
	subscriberBuffer := getenvIntDefault("FLEETTRACK_SUBSCRIBER_BUFFER", 16)
	if subscriberBuffer < 1 {
		subscriberBuffer = 1
	}
	maxReportBytes := getenvIntDefault("FLEETTRACK_MAX_REPORT_BYTES", 64*1024)
	if maxReportBytes < 1024 {
		maxReportBytes = 1024
	}

	cfg := Config{
		HTTPAddr:      getenvDefault("FLEETTRACK_HTTP_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("FLEETTRACK_DATABASE_URL"),
		SessionPepper: os.Getenv("FLEETTRACK_SESSION_PEPPER"),

		ClickHouseAddr:     getenvDefault("FLEETTRACK_CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getenvDefault("FLEETTRACK_CLICKHOUSE_DATABASE", "fleettrack"),
		ClickHouseUser:     getenvDefault("FLEETTRACK_CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("FLEETTRACK_CLICKHOUSE_PASSWORD"),

		RedisAddr:   strings.TrimSpace(os.Getenv("FLEETTRACK_REDIS_ADDR")),
		NATSURL:     strings.TrimSpace(os.Getenv("FLEETTRACK_NATS_URL")),
		NATSSubject: getenvDefault("FLEETTRACK_NATS_SUBJECT", "fleet.positions"),

		ReapInterval:  time.Duration(reapSeconds) * time.Second,
		StaleAfter:    time.Duration(staleSeconds) * time.Second,
		FlushInterval: time.Duration(flushSeconds) * time.Second,
		FlushTimeout:  time.Duration(flushTimeout) * time.Second,

		SubscriberBuffer: subscriberBuffer,
		MaxReportBytes:   int64(maxReportBytes),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("FLEETTRACK_DATABASE_URL is required")
	}
	if cfg.SessionPepper == "" {
		return Config{}, errors.New("FLEETTRACK_SESSION_PEPPER is required")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
