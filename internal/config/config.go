// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// MongoDB
	MongoURI      string `koanf:"mongodb_uri"`
	MongoDatabase string `koanf:"mongodb_database"`

	// Legacy migrated assessment store. Optional; when unset the legacy
	// source is disabled and assessment counts come from the live
	// collections only.
	LegacyMongoURI      string `koanf:"legacy_mongodb_uri"`
	LegacyMongoDatabase string `koanf:"legacy_mongodb_database"`

	// Redis cache. Optional; when unset the dashboard falls back to the
	// in-process cache.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// JWT Authentication
	JWTSecret string `koanf:"jwt_secret"`

	// Dashboard aggregation settings
	DashboardTimezone string `koanf:"dashboard_tz"`
	CacheTTLMinutes   int    `koanf:"cache_ttl_minutes"`

	// Pre-migration counts added to historical queries. These were recorded
	// once at migration time and never change.
	MinutesSpentOffset  int64 `koanf:"minutes_spent_offset"`
	ScreeningToolOffset int64 `koanf:"screening_tool_offset"`
	ChatbotOffset       int64 `koanf:"chatbot_offset"`

	// Rate limiting
	RateLimitPerMinute int `koanf:"rate_limit_per_minute"`
}

// Configuration validation errors.
var (
	ErrMissingMongoURI      = errors.New("MONGODB_URI is required")
	ErrMissingMongoDatabase = errors.New("MONGODB_DATABASE is required")
	ErrMissingJWTSecret     = errors.New("JWT_SECRET is required")
	ErrMissingLegacyDB      = errors.New("LEGACY_MONGODB_DATABASE is required when LEGACY_MONGODB_URI is set")
	ErrInvalidPort          = errors.New("PORT must be a valid integer")
	ErrInvalidInt           = errors.New("value must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort               = 8080
	DefaultEnv                = "development"
	DefaultDashboardTimezone  = "Asia/Kolkata"
	DefaultCacheTTLMinutes    = 30
	DefaultRateLimitPerMinute = 300
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	// Try PULSEBOARD_PORT first, then PORT for backward compatibility
	port, portErr := getEnvIntOrDefaultMulti([]string{"PULSEBOARD_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, ErrInvalidPort)
	}

	redisDB, redisDBErr := getEnvIntOrDefault("REDIS_DB", k.Int("redis_db"), 0)
	if redisDBErr != nil {
		loadErrs = append(loadErrs, redisDBErr)
	}
	cacheTTL, cacheTTLErr := getEnvIntOrDefault("CACHE_TTL_MINUTES", k.Int("cache_ttl_minutes"), DefaultCacheTTLMinutes)
	if cacheTTLErr != nil {
		loadErrs = append(loadErrs, cacheTTLErr)
	}
	rateLimit, rateLimitErr := getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", k.Int("rate_limit_per_minute"), DefaultRateLimitPerMinute)
	if rateLimitErr != nil {
		loadErrs = append(loadErrs, rateLimitErr)
	}

	minutesOffset, err := getEnvInt64OrDefault("MINUTES_SPENT_OFFSET", k.Int64("minutes_spent_offset"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	screeningOffset, err := getEnvInt64OrDefault("SCREENING_TOOL_OFFSET", k.Int64("screening_tool_offset"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	chatbotOffset, err := getEnvInt64OrDefault("CHATBOT_OFFSET", k.Int64("chatbot_offset"), 0)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefaultMulti([]string{"PULSEBOARD_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		MongoURI:            getEnvOrKoanf("MONGODB_URI", k, "mongodb_uri"),
		MongoDatabase:       getEnvOrKoanf("MONGODB_DATABASE", k, "mongodb_database"),
		LegacyMongoURI:      getEnvOrKoanf("LEGACY_MONGODB_URI", k, "legacy_mongodb_uri"),
		LegacyMongoDatabase: getEnvOrKoanf("LEGACY_MONGODB_DATABASE", k, "legacy_mongodb_database"),
		RedisAddr:           getEnvOrKoanf("REDIS_ADDR", k, "redis_addr"),
		RedisPassword:       getEnvOrKoanf("REDIS_PASSWORD", k, "redis_password"),
		RedisDB:             redisDB,
		JWTSecret:           getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		DashboardTimezone:   getEnvOrDefault("DASHBOARD_TZ", k.String("dashboard_tz"), DefaultDashboardTimezone),
		CacheTTLMinutes:     cacheTTL,
		MinutesSpentOffset:  minutesOffset,
		ScreeningToolOffset: screeningOffset,
		ChatbotOffset:       chatbotOffset,
		RateLimitPerMinute:  rateLimit,
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInt)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInt)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvInt64OrDefault returns the environment variable as int64 if set, otherwise the koanf value, or default.
func getEnvInt64OrDefault(envKey string, koanfVal int64, defaultVal int64) (int64, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidInt)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.MongoURI == "" {
		errs = append(errs, ErrMissingMongoURI)
	}
	if c.MongoDatabase == "" {
		errs = append(errs, ErrMissingMongoDatabase)
	}
	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}

	// The legacy store is optional but must be fully specified when used.
	if c.LegacyMongoURI != "" && c.LegacyMongoDatabase == "" {
		errs = append(errs, ErrMissingLegacyDB)
	}

	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"mongodb_uri":           maskMongoURI(c.MongoURI),
		"mongodb_database":      c.MongoDatabase,
		"legacy_mongodb_uri":    maskMongoURI(c.LegacyMongoURI),
		"redis_addr":            c.RedisAddr,
		"redis_password":        maskSecret(c.RedisPassword),
		"jwt_secret":            maskSecret(c.JWTSecret),
		"dashboard_tz":          c.DashboardTimezone,
		"cache_ttl_minutes":     fmt.Sprintf("%d", c.CacheTTLMinutes),
		"minutes_spent_offset":  fmt.Sprintf("%d", c.MinutesSpentOffset),
		"screening_tool_offset": fmt.Sprintf("%d", c.ScreeningToolOffset),
		"chatbot_offset":        fmt.Sprintf("%d", c.ChatbotOffset),
		"rate_limit_per_minute": fmt.Sprintf("%d", c.RateLimitPerMinute),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskMongoURI masks the password in a mongodb:// or mongodb+srv:// URI.
func maskMongoURI(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URI
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URI with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
