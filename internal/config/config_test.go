package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("SOC_JWT_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("unexpected session ttl: %v", cfg.SessionTTL)
	}
	if cfg.ResetTokenTTL != time.Hour {
		t.Fatalf("unexpected reset ttl: %v", cfg.ResetTokenTTL)
	}
	if cfg.JWTSigningSecret == "" {
		t.Fatal("expected dev secret fallback")
	}
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SOC_JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("SOC_JWT_SECRET", "s3cret")
	t.Setenv("SOC_SESSION_TTL", "1h")
	t.Setenv("SOC_RATE_BURST", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("unexpected session ttl: %v", cfg.SessionTTL)
	}
	if cfg.RateLimitBurst != 5 {
		t.Fatalf("unexpected burst: %d", cfg.RateLimitBurst)
	}
	if cfg.JWTSigningSecret != "s3cret" {
		t.Fatalf("unexpected secret: %s", cfg.JWTSigningSecret)
	}
}
