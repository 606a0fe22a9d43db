package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App struct {
		ENV      string
		Timezone string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	GRPC struct {
		Host string
		Port string
	}

	HTTP struct {
		Addr string
	}

	Matching struct {
		// ScorerVersion selects the local strategy: "v1" or "v2".
		ScorerVersion string
		SelectionSize int
		PoolSize      int
		ScoreTTL      time.Duration

		// RemoteScorerAddr is optional; when empty all scoring stays in-process.
		RemoteScorerAddr    string
		RemoteScorerTimeout time.Duration
	}

	Scheduler struct {
		Enabled            bool
		RunHour            int
		RunMinute          int
		CleanupHour        int
		Concurrency        int
		PerUserTimeout     time.Duration
		BatchDeadline      time.Duration
		ErrorRateThreshold float64
		RetryAttempts      int
		RetentionDays      int
		PendingExpiryDays  int
	}
}

func New() *Config {
	cfg := &Config{}

	// App
	cfg.App.ENV = getEnvDefault("APP_ENV", "development")
	cfg.App.Timezone = getEnvDefault("APP_TIMEZONE", "UTC")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matching")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "muzz")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// gRPC
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Ops HTTP (metrics + health)
	cfg.HTTP.Addr = getEnvDefault("HTTP_ADDR", "127.0.0.1:9090")

	// Matching
	cfg.Matching.ScorerVersion = strings.ToLower(getEnvDefault("SCORER_VERSION", "v2"))
	cfg.Matching.SelectionSize = getEnvInt("SELECTION_SIZE", 5)
	cfg.Matching.PoolSize = getEnvInt("CANDIDATE_POOL_SIZE", 50)
	cfg.Matching.ScoreTTL = getEnvDuration("SCORE_CACHE_TTL", time.Hour)
	cfg.Matching.RemoteScorerAddr = getEnvDefault("REMOTE_SCORER_ADDR", "")
	cfg.Matching.RemoteScorerTimeout = getEnvDuration("REMOTE_SCORER_TIMEOUT", 2*time.Second)

	// Scheduler
	cfg.Scheduler.Enabled = isTruthy(getEnvDefault("SCHEDULER_ENABLED", "true"))
	cfg.Scheduler.RunHour = getEnvInt("SCHEDULER_RUN_HOUR", 0)
	cfg.Scheduler.RunMinute = getEnvInt("SCHEDULER_RUN_MINUTE", 5)
	cfg.Scheduler.CleanupHour = getEnvInt("SCHEDULER_CLEANUP_HOUR", 3)
	cfg.Scheduler.Concurrency = getEnvInt("SCHEDULER_CONCURRENCY", 8)
	cfg.Scheduler.PerUserTimeout = getEnvDuration("SCHEDULER_PER_USER_TIMEOUT", 10*time.Second)
	cfg.Scheduler.BatchDeadline = getEnvDuration("SCHEDULER_BATCH_DEADLINE", 2*time.Hour)
	cfg.Scheduler.ErrorRateThreshold = getEnvFloat("SCHEDULER_ERROR_RATE_THRESHOLD", 0.05)
	cfg.Scheduler.RetryAttempts = getEnvInt("SCHEDULER_RETRY_ATTEMPTS", 3)
	cfg.Scheduler.RetentionDays = getEnvInt("SELECTION_RETENTION_DAYS", 30)
	cfg.Scheduler.PendingExpiryDays = getEnvInt("PENDING_EXPIRY_DAYS", 30)

	return cfg
}

// Location resolves App.Timezone, falling back to UTC on unknown names.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v, err := strconv.ParseFloat(getEnvDefault(k, ""), 64); err == nil {
		return v
	}
	return def
}

func getEnvDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnvDefault(k, "")); err == nil {
		return v
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
