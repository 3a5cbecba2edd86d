package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsMemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CollectionName != "users" {
		t.Fatalf("expected users collection, got %s", cfg.CollectionName)
	}
	if !cfg.UniqueName || cfg.UseExtra {
		t.Fatalf("unexpected flags: unique=%v extra=%v", cfg.UniqueName, cfg.UseExtra)
	}
	if cfg.SignupTokenTTL != 24*time.Hour {
		t.Fatalf("expected 24h ttl, got %s", cfg.SignupTokenTTL)
	}
	if cfg.MaxLoginAttempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", cfg.MaxLoginAttempts)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadRedisDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SIGNUP_TOKEN_TTL", "7d")
	t.Setenv("UNIQUE_NAME", "false")
	t.Setenv("USE_EXTRA", "true")
	t.Setenv("HASH_WORK_FACTOR", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreLocation != "redis://localhost:6379/0" || cfg.CacheURL != cfg.StoreLocation {
		t.Fatalf("unexpected locations: store=%s cache=%s", cfg.StoreLocation, cfg.CacheURL)
	}
	if cfg.SignupTokenTTL != 7*24*time.Hour {
		t.Fatalf("expected 7d ttl, got %s", cfg.SignupTokenTTL)
	}
	if cfg.UniqueName || !cfg.UseExtra || cfg.HashWorkFactor != 4 {
		t.Fatalf("unexpected cfg %+v", cfg)
	}
}

func TestLoadRequiresLocation(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("STORE_LOCATION", "")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error without store location")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":       "mongo",
		"SIGNUP_TOKEN_TTL":   "soon",
		"UNIQUE_NAME":        "maybe",
		"HASH_WORK_FACTOR":   "0",
		"MAX_LOGIN_ATTEMPTS": "-2",
		"SHUTDOWN_TIMEOUT":   "later",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", "memory")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadAccessTokenSettings(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_NAME", "accounts-test")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("expected 30m access ttl, got %s", cfg.AccessTokenTTL)
	}
	if cfg.JWTIssuer != "accounts-test" {
		t.Fatalf("expected issuer to default to app name, got %s", cfg.JWTIssuer)
	}
}

func TestLoadJWTSecretRules(t *testing.T) {
	t.Run("development allows empty", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("APP_ENV", "development")
		t.Setenv("JWT_SECRET", "")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.AccessTokenTTL != 15*time.Minute {
			t.Fatalf("expected default 15m ttl, got %s", cfg.AccessTokenTTL)
		}
	})
	t.Run("production requires secret", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("APP_ENV", "production")
		t.Setenv("JWT_SECRET", "")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error without JWT_SECRET in production")
		}
	})
	t.Run("short secret rejected", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("JWT_SECRET", "too-short")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for short JWT_SECRET")
		}
	})
	t.Run("bad ttl rejected", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("ACCESS_TOKEN_TTL", "-5m")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for negative ACCESS_TOKEN_TTL")
		}
	})
}
