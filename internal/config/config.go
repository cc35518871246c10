// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Badge set stores accepted by BADGE_SET_STORE.
const (
	BadgeSetPrimary = "primary"
	BadgeSetRedis   = "redis"
)

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
//
// ============================================================
// DEVELOPER: Add new configuration fields here.
// ============================================================
// Use struct tags to define:
// - `env:"VAR_NAME"` - the environment variable name
// - `envDefault:"value"` - set a default value
//
// After adding fields here, update loader.go Validate() if custom
// validation is needed.
// ============================================================
type Config struct {
	// ============================================================
	// Server configuration
	// ============================================================
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"BadgeEngine"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Requests per second allowed per client IP. Zero disables rate limiting.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// ============================================================
	// Storage configuration
	// ============================================================
	StorageDriver  string        `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"badge-engine.db"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"20"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBMaxRetries   uint64        `env:"DB_MAX_RETRIES" envDefault:"5"`
	MongoURI       string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase  string        `env:"MONGO_DATABASE" envDefault:"badge_engine"`
	BadgeSetStore  string        `env:"BADGE_SET_STORE" envDefault:"primary"`

	// ============================================================
	// Redis configuration
	// ============================================================
	RedisHost       string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`
	RedisMaxRetries uint64 `env:"REDIS_MAX_RETRIES" envDefault:"5"`

	// ============================================================
	// Badge engine configuration
	// ============================================================
	CatalogSeedPath   string        `env:"CATALOG_SEED_PATH" envDefault:"config/badges.yaml"`
	CatalogCacheTTL   time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"30s"`
	EvaluationTimeout time.Duration `env:"EVALUATION_TIMEOUT" envDefault:"5s"`
	DispatchWorkers   int           `env:"DISPATCH_WORKERS" envDefault:"4"`
	DispatchQueueSize int           `env:"DISPATCH_QUEUE_SIZE" envDefault:"1024"`
	UnknownRulePolicy string        `env:"UNKNOWN_RULE_POLICY" envDefault:"ignore"`
	ExampleRules      bool          `env:"ENABLE_EXAMPLE_RULES" envDefault:"false"`

	// ============================================================
	// Telemetry configuration
	// ============================================================
	OtelEnabled    bool   `env:"OTEL_ENABLED" envDefault:"true"`
	ZipkinEndpoint string `env:"ZIPKIN_ENDPOINT" envDefault:"http://localhost:9411/api/v2/spans"`
}
