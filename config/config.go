package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration.
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	CSRF          CSRFConfig
	RateLimit     RateLimitConfig
	Session       SessionConfig
	Roles         RolesConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string `validate:"required"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `validate:"required"`
	Port            int           `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string
}

// AuthConfig holds token signing and issuance configuration.
type AuthConfig struct {
	// Algorithm selects the signing profile: HS256 (symmetric) or RS256.
	Algorithm string `validate:"oneof=HS256 RS256"`
	// SecretKey signs tokens under HS256. Required unless RS256 key files are set.
	SecretKey          string
	PrivateKeyFile     string
	PublicKeyFile      string
	Issuer             string        `validate:"required"`
	Audience           string        `validate:"required"`
	AccessTokenTTL     time.Duration `validate:"gt=0"`
	RefreshTokenTTL    time.Duration `validate:"gt=0"`
	ServiceTokenTTL    time.Duration `validate:"gt=0"`
	ExtensionAPIKey    string
	DevBypassEnabled   bool
	DevBypassUserID    string
	DevBypassTenantID  string
}

// CSRFConfig holds double-submit CSRF protection configuration.
type CSRFConfig struct {
	SecretKey   string        `validate:"required"`
	MaxLifetime time.Duration `validate:"gt=0"`
	CookieName  string        `validate:"required"`
	HeaderName  string        `validate:"required"`
	ExemptPaths []string
}

// RateLimitConfig holds sliding-window rate limiter configuration.
type RateLimitConfig struct {
	Enabled       bool
	Limit         int           `validate:"gt=0"`
	Window        time.Duration `validate:"gt=0"`
	ReapInterval  time.Duration `validate:"gt=0"`
	IdleRetention time.Duration `validate:"gt=0"`
}

// SessionConfig holds session-validation configuration.
type SessionConfig struct {
	// ServiceURL points at the external session/auth service. Empty disables
	// the session-cookie fallback path.
	ServiceURL         string
	ServiceTimeout     time.Duration `validate:"gt=0"`
	CookieName         string        `validate:"required"`
	RefreshCookieName  string        `validate:"required"`
	CacheTTL           time.Duration `validate:"gt=0"`
	CacheReapInterval  time.Duration `validate:"gt=0"`
}

// RolesConfig holds the role graph loaded at startup.
type RolesConfig struct {
	// File is an optional JSON file defining the role graph. Empty uses the
	// built-in defaults.
	File string
}

// AuditConfig holds audit sink configuration.
type AuditConfig struct {
	// DatabaseURL enables the Postgres audit sink when set. The zap sink is
	// always active.
	DatabaseURL string
}

// ObservabilityConfig holds logging configuration.
type ObservabilityConfig struct {
	LogLevel  string `validate:"required,oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`
}

// New creates a new Config instance by loading environment variables.
func New() (*Config, error) {
	// Load .env if present (no-op otherwise).
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8443),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Auth: AuthConfig{
			Algorithm:         getEnv("AUTH_JWT_ALGORITHM", "HS256"),
			SecretKey:         getEnv("AUTH_SECRET_KEY", ""),
			PrivateKeyFile:    getEnv("AUTH_PRIVATE_KEY_FILE", ""),
			PublicKeyFile:     getEnv("AUTH_PUBLIC_KEY_FILE", ""),
			Issuer:            getEnv("AUTH_ISSUER", "authgate"),
			Audience:          getEnv("AUTH_AUDIENCE", "authgate-api"),
			AccessTokenTTL:    getEnvAsDuration("AUTH_ACCESS_TOKEN_TTL", 60*time.Minute),
			RefreshTokenTTL:   getEnvAsDuration("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			ServiceTokenTTL:   getEnvAsDuration("AUTH_SERVICE_TOKEN_TTL", 30*time.Minute),
			ExtensionAPIKey:   getEnv("EXTENSION_API_KEY", ""),
			DevBypassEnabled:  getEnvAsBool("AUTH_DEV_BYPASS_ENABLED", false),
			DevBypassUserID:   getEnv("AUTH_DEV_BYPASS_USER_ID", "dev-user"),
			DevBypassTenantID: getEnv("AUTH_DEV_BYPASS_TENANT_ID", "dev-tenant"),
		},
		CSRF: CSRFConfig{
			SecretKey:   getEnv("CSRF_SECRET_KEY", ""),
			MaxLifetime: getEnvAsDuration("CSRF_MAX_LIFETIME", time.Hour),
			CookieName:  getEnv("CSRF_COOKIE_NAME", "csrf_token"),
			HeaderName:  getEnv("CSRF_HEADER_NAME", "X-CSRF-Token"),
			ExemptPaths: getEnvAsSlice("CSRF_EXEMPT_PATHS", []string{"/healthz", "/readyz", "/auth/token"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Limit:         getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
			Window:        getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			ReapInterval:  getEnvAsDuration("RATE_LIMIT_REAP_INTERVAL", time.Minute),
			IdleRetention: getEnvAsDuration("RATE_LIMIT_IDLE_RETENTION", 5*time.Minute),
		},
		Session: SessionConfig{
			ServiceURL:        getEnv("SESSION_SERVICE_URL", ""),
			ServiceTimeout:    getEnvAsDuration("SESSION_SERVICE_TIMEOUT", 5*time.Second),
			CookieName:        getEnv("SESSION_COOKIE_NAME", "session_token"),
			RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
			CacheTTL:          getEnvAsDuration("SESSION_CACHE_TTL", 30*time.Second),
			CacheReapInterval: getEnvAsDuration("SESSION_CACHE_REAP_INTERVAL", 15*time.Second),
		},
		Roles: RolesConfig{
			File: getEnv("ROLES_FILE", ""),
		},
		Audit: AuditConfig{
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	switch c.Auth.Algorithm {
	case "HS256":
		if c.Auth.SecretKey == "" {
			return fmt.Errorf("AUTH_SECRET_KEY is required with HS256")
		}
	case "RS256":
		if c.Auth.PrivateKeyFile == "" || c.Auth.PublicKeyFile == "" {
			return fmt.Errorf("AUTH_PRIVATE_KEY_FILE and AUTH_PUBLIC_KEY_FILE are required with RS256")
		}
	}

	if c.IsProduction() && c.Auth.DevBypassEnabled {
		return fmt.Errorf("development bypass must not be enabled in production")
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
