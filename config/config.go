// Package config loads the EMR settings from the environment
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment stage the process runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string {
	return string(e)
}

// ParseEnvironment accepts the short and long spellings of each stage
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", s)
}

// Database drivers accepted in DATABASE_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const minSecretLength = 32

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int
	MaxLogFileSize    int64
	MaxRequestBody    int64
	MaxHeaderSize     int64

	DatabaseDriver string
	DatabaseURL    string

	// SessionSecret signs the portal session cookie. Login is refused while it is empty.
	SessionSecret string

	CatalogSourceURL       string
	CatalogRefreshInterval time.Duration
	DashboardWindowDays    int

	// RequireProxy rejects requests that did not come through a reverse proxy
	RequireProxy bool
}

// Load reads the environment, applies defaults and validates the result
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", "dev"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	driver := strings.ToLower(getEnvWithDefault("DATABASE_DRIVER", DriverSQLite))
	defaultURL := ""
	if driver == DriverSQLite {
		defaultURL = "emr.db"
	}

	refresh, err := getDurationEnvWithDefault("CATALOG_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid CATALOG_REFRESH_INTERVAL: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 100*1024*1024),
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 1024*1024),
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1024*1024),

		DatabaseDriver: driver,
		DatabaseURL:    getEnvWithDefault("DATABASE_URL", defaultURL),
		SessionSecret:  os.Getenv("SESSION_SECRET"),

		CatalogSourceURL:       os.Getenv("CATALOG_SOURCE_URL"),
		CatalogRefreshInterval: refresh,
		DashboardWindowDays:    getIntEnvWithDefault("DASHBOARD_WINDOW_DAYS", 7),
		RequireProxy:           getBoolEnvWithDefault("REQUIRE_PROXY", false),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether cookies must be marked Secure
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// ListenAddr is the host:port the HTTP server binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}
	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}
	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}
	if err := validateDatabase(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if err := validateSessionSecret(cfg.SessionSecret, cfg.Env); err != nil {
		return fmt.Errorf("invalid SESSION_SECRET: %w", err)
	}
	if err := validateSourceURL(cfg.CatalogSourceURL); err != nil {
		return fmt.Errorf("invalid CATALOG_SOURCE_URL: %w", err)
	}
	if cfg.CatalogRefreshInterval < time.Minute {
		return fmt.Errorf("invalid CATALOG_REFRESH_INTERVAL: must be at least 1m, got: %s", cfg.CatalogRefreshInterval)
	}
	if cfg.DashboardWindowDays < 1 || cfg.DashboardWindowDays > 365 {
		return fmt.Errorf("invalid DASHBOARD_WINDOW_DAYS: must be between 1 and 365, got: %d", cfg.DashboardWindowDays)
	}
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}
	return nil
}

func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, bind to a private address behind the proxy", address)
	}
	return nil
}

func validateLogLevel(logLevel string) error {
	switch strings.ToLower(logLevel) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("LOG_LEVEL must be one of: [debug info warn error], got: %s", logLevel)
}

func validateSizeLimit(size int64, name string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", name, size)
	}
	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", name, size)
	}
	return nil
}

func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}
	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}
	return nil
}

func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}
	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}
	return nil
}

func validateDatabase(driver, dsn string) error {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			return fmt.Errorf("sqlite needs a file path or :memory:")
		}
	case DriverPostgres:
		if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
			return fmt.Errorf("postgres needs a postgres:// connection URL")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got: %s", DriverSQLite, DriverPostgres, driver)
	}
	return nil
}

// validateSessionSecret allows an empty secret outside production; login then
// answers 500 until one is configured
func validateSessionSecret(secret string, env Environment) error {
	if secret == "" {
		if env == EnvProduction {
			return fmt.Errorf("SESSION_SECRET is required in production")
		}
		return nil
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength)
	}
	return nil
}

func validateSourceURL(raw string) error {
	if raw == "" || !strings.Contains(raw, "://") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnvWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}

// GetEnvVars lists every variable Load reads
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DATABASE_DRIVER",
		"DATABASE_URL",
		"SESSION_SECRET",
		"CATALOG_SOURCE_URL",
		"CATALOG_REFRESH_INTERVAL",
		"DASHBOARD_WINDOW_DAYS",
		"REQUIRE_PROXY",
	}
}
