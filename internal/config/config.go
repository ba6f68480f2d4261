package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Refresh  RefreshConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values for the issuance audit log.
// An empty DSN disables auditing.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values for the CSRF binding store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	OpTimeoutMs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token signing and validation parameters.
type AuthConfig struct {
	SecretKey       string
	ExternalKey     string
	InternalIssuer  string
	ExternalIssuer  string
	ServiceID       string
	AdminTokenTTLMs int64
	CsrfTokenTTLMs  int64
	CsrfStorePolicy string
	IssuanceAPIKey  string
}

// RefreshConfig points at the authentication server used for refresh-token exchange.
type RefreshConfig struct {
	ServerURL      string
	TimeoutMs      int
	BreakerEnabled bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "funding-auth"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			KeyPrefix:   os.Getenv("REDIS_KEY_PREFIX"),
			OpTimeoutMs: getEnvAsInt("REDIS_OP_TIMEOUT_MS", 500),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SecretKey:       os.Getenv("AUTH_SECRET_KEY"),
			ExternalKey:     os.Getenv("AUTH_EXTERNAL_KEY"),
			InternalIssuer:  getEnv("AUTH_INTERNAL_ISSUER", "https://funding.com"),
			ExternalIssuer:  getEnv("AUTH_EXTERNAL_ISSUER", "https://almagest-auth.com"),
			ServiceID:       getEnv("AUTH_SERVICE_ID", "funding"),
			AdminTokenTTLMs: getEnvAsInt64("AUTH_ADMIN_TOKEN_TTL_MS", int64(time.Hour/time.Millisecond)),
			CsrfTokenTTLMs:  getEnvAsInt64("AUTH_CSRF_TOKEN_TTL_MS", int64(24*time.Hour/time.Millisecond)),
			CsrfStorePolicy: getEnv("AUTH_CSRF_STORE_POLICY", "fail_closed"),
			IssuanceAPIKey:  os.Getenv("AUTH_ISSUANCE_API_KEY"),
		},
		Refresh: RefreshConfig{
			ServerURL:      getEnv("AUTH_SERVER_URL", "http://127.0.0.1:9000"),
			TimeoutMs:      getEnvAsInt("AUTH_REFRESH_TIMEOUT_MS", 5000),
			BreakerEnabled: getEnvAsBool("AUTH_REFRESH_BREAKER_ENABLED", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would otherwise surface as runtime failures.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.AdminTokenTTLMs <= 0 {
		errs = append(errs, errors.New("AUTH_ADMIN_TOKEN_TTL_MS must be positive"))
	}
	if c.Auth.CsrfTokenTTLMs <= 0 {
		errs = append(errs, errors.New("AUTH_CSRF_TOKEN_TTL_MS must be positive"))
	}
	switch c.Auth.CsrfStorePolicy {
	case "fail_closed", "fail_open":
	default:
		errs = append(errs, fmt.Errorf("AUTH_CSRF_STORE_POLICY must be fail_closed or fail_open, got %q", c.Auth.CsrfStorePolicy))
	}
	if c.Redis.OpTimeoutMs <= 0 {
		errs = append(errs, errors.New("REDIS_OP_TIMEOUT_MS must be positive"))
	}
	if c.Refresh.TimeoutMs <= 0 {
		errs = append(errs, errors.New("AUTH_REFRESH_TIMEOUT_MS must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// OpTimeout bounds every CSRF store call.
func (r RedisConfig) OpTimeout() time.Duration {
	return time.Duration(r.OpTimeoutMs) * time.Millisecond
}

// AdminTokenTTL returns the admin access token lifetime.
func (a AuthConfig) AdminTokenTTL() time.Duration {
	return time.Duration(a.AdminTokenTTLMs) * time.Millisecond
}

// CsrfTokenTTL returns the CSRF token lifetime, also used as the binding TTL.
func (a AuthConfig) CsrfTokenTTL() time.Duration {
	return time.Duration(a.CsrfTokenTTLMs) * time.Millisecond
}

// Timeout returns the refresh HTTP client timeout.
func (r RefreshConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
