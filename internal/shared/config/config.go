package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port            string
	GinMode         string
	APIVersion      string
	APIPrefix       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	CORSOrigins     []string
	// TrustedProxies may set X-Forwarded-For; empty means the peer address is the client
	TrustedProxies  []string

	// StoreDriver selects where events live: "memory" or "postgres"
	StoreDriver string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	RateLimit     RateLimitConfig
	Lottery       LotteryConfig
	Notifications NotificationConfig

	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string
}

// RedisConfig holds Redis configuration. Redis backs the cache, the
// distributed event lock and the rate limiter; an empty Host disables it.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string
}

// Enabled reports whether a Redis server was configured
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration for waitlist joins
type RateLimitConfig struct {
	Enabled        bool
	WindowDuration time.Duration
	JoinRequests   int
	WhitelistedIPs []string
}

// LotteryConfig tunes the per-event lock and notification hand-off
type LotteryConfig struct {
	LockTTL       time.Duration
	LockWait      time.Duration
	NotifyTimeout time.Duration
}

// NotificationConfig holds the Kafka pipeline settings
type NotificationConfig struct {
	Enabled         bool
	Brokers         []string
	Topic           string
	ConsumerGroupID string
	NumWorkers      int
	MaxRetries      int
	RetryBackoff    time.Duration
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		APIVersion:      getEnv("API_VERSION", "v1"),
		APIPrefix:       getEnv("API_PREFIX", "/api"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxHeaderBytes:  getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB
		CORSOrigins:     getStringSliceEnv("CORS_ORIGINS", []string{"*"}),
		TrustedProxies:  getStringSliceEnv("TRUSTED_PROXIES", nil),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMemory)),

		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "eventdraw"),
			User:     getEnv("DB_USER", "eventdraw"),
			Password: getEnv("DB_PASSWORD", "eventdraw"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		RateLimit: RateLimitConfig{
			Enabled:        getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration: getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			JoinRequests:   getIntEnv("RATE_LIMIT_JOIN_REQUESTS", 10),
			WhitelistedIPs: getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Lottery: LotteryConfig{
			LockTTL:       getDurationEnv("LOCK_TTL", 30*time.Second),
			LockWait:      getDurationEnv("LOCK_WAIT", 5*time.Second),
			NotifyTimeout: getDurationEnv("NOTIFY_TIMEOUT", 5*time.Second),
		},

		Notifications: NotificationConfig{
			Enabled:         getBoolEnv("NOTIFICATIONS_ENABLED", false),
			Brokers:         getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:           getEnv("NOTIFICATION_TOPIC", "lottery-notifications"),
			ConsumerGroupID: getEnv("CONSUMER_GROUP_ID", "eventdraw-notification-workers"),
			NumWorkers:      getIntEnv("NUM_CONSUMER_WORKERS", 2),
			MaxRetries:      getIntEnv("NOTIFICATION_MAX_RETRIES", 3),
			RetryBackoff:    getDurationEnv("NOTIFICATION_RETRY_BACKOFF", time.Second),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// Validate rejects combinations the server cannot start with
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverPostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Lottery.LockWait <= 0 || c.Lottery.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL and LOCK_WAIT must be positive")
	}
	if c.Lottery.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	if c.Notifications.Enabled && len(c.Notifications.Brokers) == 0 {
		return fmt.Errorf("NOTIFICATIONS_ENABLED requires KAFKA_BROKERS")
	}
	if c.IsProduction() && c.JWT.Secret == "your-super-secret-jwt-key" {
		return fmt.Errorf("JWT_SECRET must be set in release mode")
	}
	return nil
}

func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv reads a comma-separated list
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}
