package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP
	HTTPPort string

	// Store backend: "redis" or "memory"
	StoreBackend string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Inbound channel: subscription pattern and the one topic the
	// normalizer accepts
	IngestPattern string
	IngestTopic   string
	IngestWorkers int

	// Bounded path store
	PathCap          int
	AppendMaxRetries int

	// Status classifier thresholds
	OfflineThresholdMS int
	IdleThresholdMS    int
	MoveThresholdM     float64

	// Observation cycle
	EvalIntervalMS int

	// Postgres archive (optional; disabled unless ArchiveEnabled)
	ArchiveEnabled bool
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBMaxConns     int32

	// History writer tuning
	HistoryChannelSize     int
	HistoryBatchSize       int
	HistoryFlushIntervalMS int

	// Fan-out hub
	ClientSendBuffer int
	BroadcastBuffer  int
}

func Load() *Config {
	return &Config{
		HTTPPort:               getEnv("HTTP_PORT", "8080"),
		StoreBackend:           getEnv("STORE_BACKEND", "redis"),
		RedisAddr:              getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvInt("REDIS_DB", 0),
		IngestPattern:          getEnv("INGEST_PATTERN", "fleet/*"),
		IngestTopic:            getEnv("INGEST_TOPIC", "fleet/gps"),
		IngestWorkers:          getEnvInt("INGEST_WORKERS", 4),
		PathCap:                getEnvInt("PATH_CAP", 500),
		AppendMaxRetries:       getEnvInt("APPEND_MAX_RETRIES", 10),
		OfflineThresholdMS:     getEnvInt("OFFLINE_THRESHOLD_MS", 120000),
		IdleThresholdMS:        getEnvInt("IDLE_THRESHOLD_MS", 30000),
		MoveThresholdM:         getEnvFloat("MOVE_THRESHOLD_M", 2.0),
		EvalIntervalMS:         getEnvInt("EVAL_INTERVAL_MS", 5000),
		ArchiveEnabled:         getEnvBool("ARCHIVE_ENABLED", false),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "fleet_user"),
		DBPassword:             getEnv("DB_PASSWORD", "fleet_password"),
		DBName:                 getEnv("DB_NAME", "fleet_tracker"),
		DBMaxConns:             int32(getEnvInt("DB_MAX_CONNS", 10)),
		HistoryChannelSize:     getEnvInt("HISTORY_CHANNEL_SIZE", 10000),
		HistoryBatchSize:       getEnvInt("HISTORY_BATCH_SIZE", 500),
		HistoryFlushIntervalMS: getEnvInt("HISTORY_FLUSH_INTERVAL_MS", 200),
		ClientSendBuffer:       getEnvInt("CLIENT_SEND_BUFFER", 256),
		BroadcastBuffer:        getEnvInt("BROADCAST_BUFFER", 1024),
	}
}

// OfflineThreshold returns the classifier offline cutoff as a duration.
func (c *Config) OfflineThreshold() time.Duration {
	return time.Duration(c.OfflineThresholdMS) * time.Millisecond
}

// IdleThreshold returns the classifier idle cutoff as a duration.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdMS) * time.Millisecond
}

// EvalInterval returns the observation cycle period.
func (c *Config) EvalInterval() time.Duration {
	return time.Duration(c.EvalIntervalMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
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

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
