package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	Environment string
	LogLevel    string
	CORSOrigins string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Validation  ValidationConfig
	Alerting    AlertingConfig
	Lifecycle   LifecycleConfig
	Dispatch    DispatchConfig
	RateLimit   RateLimitConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL               string
	IngestExchange    string
	IngestQueue       string
	IngestRoutingKey  string
	DLQQueue          string
	EventsExchange    string
	AlertRoutingKey   string
	NotifyRoutingKey  string
	ReadingRoutingKey string
	PrefetchCount     int
	IngestEnabled     bool
}

// RedisConfig holds the dashboard cache settings. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	DashboardTTL time.Duration
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ValidationConfig holds validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// AlertingConfig holds alert engine settings
type AlertingConfig struct {
	GlobalFallback            bool
	MinDataPointsForDetection int
	HistoryWindow             int
}

// LifecycleConfig holds complaint workflow settings
type LifecycleConfig struct {
	ReportMinLength int
}

// DispatchConfig holds intervention assignment settings
type DispatchConfig struct {
	ReopenTerminal bool
}

// RateLimitConfig holds per-IP request limits
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "smart-copro-api"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8080),
		Environment: getEnv("APP_ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			AutoMigrate: getEnvAsBool("DATABASE_AUTO_MIGRATE", true),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			IngestExchange:    getEnv("RABBITMQ_INGEST_EXCHANGE", "copro.ingest.exchange"),
			IngestQueue:       getEnv("RABBITMQ_INGEST_QUEUE", "copro.ingest.readings"),
			IngestRoutingKey:  getEnv("RABBITMQ_INGEST_ROUTING_KEY", "meter.reading.collected"),
			DLQQueue:          getEnv("RABBITMQ_DLQ_QUEUE", "copro.ingest.dlq"),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "copro.events.exchange"),
			AlertRoutingKey:   getEnv("RABBITMQ_ALERT_ROUTING_KEY", "alert.raised"),
			NotifyRoutingKey:  getEnv("RABBITMQ_NOTIFY_ROUTING_KEY", "complaint.notification"),
			ReadingRoutingKey: getEnv("RABBITMQ_READING_ROUTING_KEY", "meter.reading.recorded"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 10),
			IngestEnabled:     getEnvAsBool("RABBITMQ_INGEST_ENABLED", true),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			DashboardTTL: getEnvAsDuration("DASHBOARD_CACHE_TTL", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", ""),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Alerting: AlertingConfig{
			GlobalFallback:            getEnvAsBool("ALERTING_GLOBAL_FALLBACK", false),
			MinDataPointsForDetection: getEnvAsInt("ALERTING_MIN_DATA_POINTS", 3),
			HistoryWindow:             getEnvAsInt("ALERTING_HISTORY_WINDOW", 10),
		},
		Lifecycle: LifecycleConfig{
			ReportMinLength: getEnvAsInt("LIFECYCLE_REPORT_MIN_LENGTH", 10),
		},
		Dispatch: DispatchConfig{
			ReopenTerminal: getEnvAsBool("DISPATCH_REOPEN_TERMINAL", true),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required but not set in environment variables")
	}
	if cfg.Lifecycle.ReportMinLength < 0 {
		return nil, fmt.Errorf("LIFECYCLE_REPORT_MIN_LENGTH must not be negative, got %d", cfg.Lifecycle.ReportMinLength)
	}

	return cfg, nil
}

// ListenAddr returns the host:port string for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.ServicePort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
