package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Promo    PromoConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
	MigrateOnStart  bool
}

// RedisConfig holds the cache store connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig controls key namespacing, TTLs and bulk deletion.
type CacheConfig struct {
	Prefix           string
	ValidationTTL    time.Duration
	LookupTTL        time.Duration
	ScanBatchSize    int
	PatternDelay     time.Duration
	OperationTimeout time.Duration
}

// PromoConfig holds redemption engine settings.
type PromoConfig struct {
	MaxUsesPerUser   int
	StoreTimeout     time.Duration
	RedeemTimeout    time.Duration
	RedeemMaxRetries int
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	APIKey string
}

// CatalogConfig holds promo catalog import settings.
type CatalogConfig struct {
	Files         []string
	ImportOnStart bool
	S3            S3Config
}

// S3Config holds AWS S3 configuration for catalog files.
type S3Config struct {
	Enabled bool
	Bucket  string
	Region  string
	Prefix  string // Path prefix within bucket (e.g., "promos/")
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "subpromo"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
			MigrateOnStart:  getEnvAsBool("DB_MIGRATE_ON_START", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Prefix:           getEnv("CACHE_PREFIX", "subpromo"),
			ValidationTTL:    getEnvAsDuration("CACHE_VALIDATION_TTL", 5*time.Minute),
			LookupTTL:        getEnvAsDuration("CACHE_LOOKUP_TTL", 10*time.Minute),
			ScanBatchSize:    getEnvAsInt("CACHE_SCAN_BATCH_SIZE", 100),
			PatternDelay:     getEnvAsDuration("CACHE_PATTERN_DELAY", 10*time.Millisecond),
			OperationTimeout: getEnvAsDuration("CACHE_OPERATION_TIMEOUT", 250*time.Millisecond),
		},
		Promo: PromoConfig{
			MaxUsesPerUser:   getEnvAsInt("PROMO_MAX_USES_PER_USER", 1),
			StoreTimeout:     getEnvAsDuration("PROMO_STORE_TIMEOUT", 2*time.Second),
			RedeemTimeout:    getEnvAsDuration("PROMO_REDEEM_TIMEOUT", 5*time.Second),
			RedeemMaxRetries: getEnvAsInt("PROMO_REDEEM_MAX_RETRIES", 3),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Catalog: CatalogConfig{
			Files:         getEnvAsList("CATALOG_FILES", nil),
			ImportOnStart: getEnvAsBool("CATALOG_IMPORT_ON_START", false),
			S3: S3Config{
				Enabled: getEnvAsBool("S3_ENABLED", false),
				Bucket:  getEnv("S3_BUCKET", ""),
				Region:  getEnv("S3_REGION", "us-east-1"),
				Prefix:  getEnv("S3_PREFIX", "promos/"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Cache.Prefix == "" || strings.ContainsAny(c.Cache.Prefix, "*?[]") {
		return fmt.Errorf("invalid cache prefix: %q", c.Cache.Prefix)
	}

	// Validation results depend on usage counters, so they must expire quickly.
	if c.Cache.ValidationTTL <= 0 || c.Cache.ValidationTTL > time.Hour {
		return fmt.Errorf("cache validation TTL must be between 1s and 1h, got %s", c.Cache.ValidationTTL)
	}

	if c.Cache.LookupTTL <= 0 {
		return fmt.Errorf("cache lookup TTL must be positive")
	}

	if c.Cache.ScanBatchSize < 1 {
		return fmt.Errorf("cache scan batch size must be at least 1")
	}

	if c.Cache.OperationTimeout <= 0 {
		return fmt.Errorf("cache operation timeout must be positive")
	}

	if c.Promo.MaxUsesPerUser < 1 {
		return fmt.Errorf("promo max uses per user must be at least 1")
	}

	if c.Promo.StoreTimeout <= 0 || c.Promo.RedeemTimeout <= 0 {
		return fmt.Errorf("promo store and redeem timeouts must be positive")
	}

	if c.Promo.RedeemMaxRetries < 0 {
		return fmt.Errorf("promo redeem max retries cannot be negative")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	if c.Catalog.S3.Enabled {
		if c.Catalog.S3.Bucket == "" {
			return fmt.Errorf("S3 bucket is required when S3 is enabled")
		}
		if c.Catalog.S3.Region == "" {
			return fmt.Errorf("S3 region is required when S3 is enabled")
		}
	}

	if c.Catalog.ImportOnStart && len(c.Catalog.Files) == 0 {
		return fmt.Errorf("catalog files are required when import on start is enabled")
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration parses values like "5m" or "250ms".
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
