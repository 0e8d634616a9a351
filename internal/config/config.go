package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSigningKey     string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	JWTTTL            time.Duration `mapstructure:"JWT_TTL"`
	DevClinicID       string        `mapstructure:"DEV_CLINIC_ID"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	TrustedProxies    []string      `mapstructure:"TRUSTED_PROXIES"`
	CacheBackend      string        `mapstructure:"CACHE_BACKEND"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	AnalyticsCacheTTL time.Duration `mapstructure:"ANALYTICS_CACHE_TTL"`
	AnalyticsCacheCap int           `mapstructure:"ANALYTICS_CACHE_SIZE"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	LogFile           string        `mapstructure:"LOG_FILE"`
	LogMaxSizeMB      int           `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups     int           `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays     int           `mapstructure:"LOG_MAX_AGE_DAYS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	DefaultClinicName string        `mapstructure:"DEFAULT_CLINIC_NAME"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "JWT_TTL", "DEV_CLINIC_ID", "CORS_ORIGINS", "TRUSTED_PROXIES",
	"CACHE_BACKEND", "REDIS_URL", "ANALYTICS_CACHE_TTL", "ANALYTICS_CACHE_SIZE",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"REQUEST_TIMEOUT", "DEFAULT_CLINIC_NAME",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "production")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_ISSUER", "clinicore")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("ANALYTICS_CACHE_TTL", "5m")
	v.SetDefault("ANALYTICS_CACHE_SIZE", 1024)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("DEFAULT_CLINIC_NAME", "CliniCore")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.TrustedProxies = splitList(v.GetString("TRUSTED_PROXIES"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: requests without an Authorization header get admin access on DEV_CLINIC_ID.")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesRedis reports whether the analytics cache should be backed by Redis.
func (c *Config) UsesRedis() bool {
	return strings.EqualFold(c.CacheBackend, "redis")
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required outside development (current ENV=%q)", c.Env)
	}
	if c.IsDev() {
		if _, err := uuid.Parse(c.DevClinicID); err != nil {
			return fmt.Errorf("DEV_CLINIC_ID must be a clinic UUID when ENV=development, got %q", c.DevClinicID)
		}
	}
	if c.JWTSigningKey != "" && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 characters, got %d", len(c.JWTSigningKey))
	}

	switch strings.ToLower(c.CacheBackend) {
	case "memory", "":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be \"memory\" or \"redis\", got %q", c.CacheBackend)
	}

	if c.AnalyticsCacheTTL <= 0 {
		return fmt.Errorf("ANALYTICS_CACHE_TTL must be positive, got %s", c.AnalyticsCacheTTL)
	}
	if c.AnalyticsCacheCap <= 0 {
		return fmt.Errorf("ANALYTICS_CACHE_SIZE must be positive, got %d", c.AnalyticsCacheCap)
	}

	return nil
}
