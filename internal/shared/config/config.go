package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"statements-backend/internal/shared/telemetry"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string

	LogLevel  string
	LogFormat string

	RedisURL             string
	SignalBackend        string
	SQSReprocessQueueURL string
	SQSResultsQueueURL   string
	AWSRegion            string

	ObjectStoreType string
	LocalStoreDir   string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	MetricsRefreshInterval time.Duration
	TrendWindowDays        int

	RateLimitRPS   float64
	RateLimitBurst int

	WorkerConcurrency       int
	WorkerVisibilityTimeout time.Duration
	ShutdownTimeout         time.Duration
}

var envFiles = []string{".env", "cmd/.env"}

// Load reads configuration from .env files (best effort) and the environment.
func Load() Config {
	v := viper.New()
	for _, path := range envFiles {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		// Missing files are fine; later files only add keys.
		_ = v.MergeInConfig()
	}
	v.AutomaticEnv()
	setDefaults(v)

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		telemetry.Warn("config.missing_database_url", map[string]any{"env": env})
	}

	interval := v.GetDuration("METRICS_REFRESH_INTERVAL")
	if interval <= 0 {
		interval = 30 * time.Second
	}
	window := v.GetInt("TREND_WINDOW_DAYS")
	if window <= 0 {
		window = 30
	}

	return Config{
		Port:            v.GetString("PORT"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		DatabaseURL:     dbURL,

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		RedisURL:             strings.TrimSpace(v.GetString("REDIS_URL")),
		SignalBackend:        normalizeSignalBackend(v.GetString("SIGNAL_BACKEND")),
		SQSReprocessQueueURL: strings.TrimSpace(v.GetString("SQS_REPROCESS_QUEUE_URL")),
		SQSResultsQueueURL:   strings.TrimSpace(v.GetString("SQS_RESULTS_QUEUE_URL")),
		AWSRegion:            v.GetString("AWS_REGION"),

		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		SSEKMSKeyID:     v.GetString("SSE_KMS_KEY_ID"),

		MetricsRefreshInterval: interval,
		TrendWindowDays:        window,

		RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),

		WorkerConcurrency:       max(1, v.GetInt("WORKER_CONCURRENCY")),
		WorkerVisibilityTimeout: time.Duration(v.GetInt("SQS_VISIBILITY_TIMEOUT_SECONDS")) * time.Second,
		ShutdownTimeout:         v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "dev")
	v.SetDefault("CORS_ALLOW_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SIGNAL_BACKEND", "memory")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("OBJECT_STORE", "local")
	v.SetDefault("LOCAL_STORE_DIR", "./data")
	v.SetDefault("METRICS_REFRESH_INTERVAL", "30s")
	v.SetDefault("TREND_WINDOW_DAYS", 30)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("SQS_VISIBILITY_TIMEOUT_SECONDS", 300)
	v.SetDefault("SHUTDOWN_TIMEOUT", "30s")
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeSignalBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sqs":
		return "sqs"
	case "redis":
		return "redis"
	default:
		return "memory"
	}
}
