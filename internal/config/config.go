package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/congo-pay/accounts/internal/credential"
	"github.com/congo-pay/accounts/internal/lifecycle"
	"github.com/congo-pay/accounts/internal/token"
)

const (
	defaultAppName         = "accounts"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultStoreDriver     = DriverPostgres
	defaultCollection      = "users"
	defaultSignupTokenTTL  = "24h"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultLoginRatePerMin = 5
	defaultAccessTokenTTL  = 15 * time.Minute
	minJWTSecretLen        = 32
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Supported document store drivers.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// StoreDriver selects the document store backend.
	StoreDriver string
	// StoreLocation is the connection target (postgres DSN or redis URL).
	StoreLocation string
	// CacheURL points at Redis for the HTTP idempotency and rate-limit
	// middleware. Defaults to StoreLocation when the store itself is Redis.
	CacheURL string

	CollectionName string
	UniqueName     bool
	UseExtra       bool
	SignupTokenTTL time.Duration
	HashWorkFactor int

	MaxLoginAttempts int
	LoginRatePerMin  int

	// JWTSecret signs access tokens. Empty is only allowed in development,
	// where a random secret is generated at startup.
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		ShutdownPeriod:   defaultShutdownDelay,
		IdempotencyTTL:   defaultIdempotencyTTL,
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", defaultStoreDriver)),
		CollectionName:   getEnv("COLLECTION_NAME", defaultCollection),
		HashWorkFactor:   credential.DefaultWorkFactor,
		MaxLoginAttempts: lifecycle.DefaultMaxAttempts,
		LoginRatePerMin:  defaultLoginRatePerMin,
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AccessTokenTTL:   defaultAccessTokenTTL,
	}
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.AppName)

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := token.ParseTTL(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("invalid ACCESS_TOKEN_TTL: must be positive")
		}
		cfg.AccessTokenTTL = d
	}

	switch {
	case cfg.JWTSecret == "" && !cfg.IsDevelopment():
		return Config{}, fmt.Errorf("JWT_SECRET must be set when APP_ENV is %s", cfg.AppEnv)
	case cfg.JWTSecret != "" && len(cfg.JWTSecret) < minJWTSecretLen:
		return Config{}, fmt.Errorf("invalid JWT_SECRET: need at least %d bytes", minJWTSecretLen)
	}

	ttl, err := token.ParseTTL(getEnv("SIGNUP_TOKEN_TTL", defaultSignupTokenTTL))
	if err != nil {
		return Config{}, fmt.Errorf("invalid SIGNUP_TOKEN_TTL: %w", err)
	}
	cfg.SignupTokenTTL = ttl

	if cfg.UniqueName, err = getBool("UNIQUE_NAME", true); err != nil {
		return Config{}, err
	}
	if cfg.UseExtra, err = getBool("USE_EXTRA", false); err != nil {
		return Config{}, err
	}
	if cfg.HashWorkFactor, err = getPositiveInt("HASH_WORK_FACTOR", cfg.HashWorkFactor); err != nil {
		return Config{}, err
	}
	if cfg.MaxLoginAttempts, err = getPositiveInt("MAX_LOGIN_ATTEMPTS", cfg.MaxLoginAttempts); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMin, err = getPositiveInt("LOGIN_RATE_PER_MINUTE", cfg.LoginRatePerMin); err != nil {
		return Config{}, err
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		cfg.StoreLocation = firstNonEmpty(os.Getenv("STORE_LOCATION"), os.Getenv("DATABASE_URL"))
		cfg.CacheURL = os.Getenv("REDIS_URL")
	case DriverRedis:
		cfg.StoreLocation = firstNonEmpty(os.Getenv("STORE_LOCATION"), os.Getenv("REDIS_URL"))
		cfg.CacheURL = firstNonEmpty(os.Getenv("REDIS_URL"), cfg.StoreLocation)
	case DriverMemory:
		cfg.CacheURL = os.Getenv("REDIS_URL")
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.StoreDriver != DriverMemory && cfg.StoreLocation == "" {
		return Config{}, fmt.Errorf("STORE_LOCATION must be set for driver %s", cfg.StoreDriver)
	}

	return cfg, nil
}

// IsDevelopment reports whether the app runs in a local environment.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getPositiveInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
