package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries need from the environment.
type Config struct {
	Env  string
	Addr string

	PostgresDSN string
	RedisURL    string

	JWTSigningSecret string
	SessionTTL       time.Duration
	ResetTokenTTL    time.Duration
	SetupTokenTTL    time.Duration

	ProfileCacheTTL time.Duration
	ExpiryInterval  time.Duration

	RateLimitBurst     int
	RateLimitPerSecond int
}

// ErrMissingSecret is returned when a production deployment omits the token
// signing secret. The dev fallback must never reach production.
var ErrMissingSecret = errors.New("config: SOC_JWT_SECRET is required in production")

const devSigningSecret = "dev-secret-not-for-production"

// Load builds a Config from environment variables. In dev mode a .env file is
// consulted first so local runs stay flag-free.
func Load() (Config, error) {
	env := getEnv("APP_ENV", "dev")
	if env == "dev" {
		_ = godotenv.Load()
	}

	cfg := Config{
		Env:                env,
		Addr:               getEnv("SOC_ADDR", ":8080"),
		PostgresDSN:        os.Getenv("SOC_PG_DSN"),
		RedisURL:           os.Getenv("SOC_REDIS_URL"),
		JWTSigningSecret:   os.Getenv("SOC_JWT_SECRET"),
		SessionTTL:         getEnvDuration("SOC_SESSION_TTL", 24*time.Hour),
		ResetTokenTTL:      getEnvDuration("SOC_RESET_TOKEN_TTL", time.Hour),
		SetupTokenTTL:      getEnvDuration("SOC_SETUP_TOKEN_TTL", 24*time.Hour),
		ProfileCacheTTL:    getEnvDuration("SOC_PROFILE_CACHE_TTL", 30*time.Second),
		ExpiryInterval:     getEnvDuration("SOC_EXPIRY_INTERVAL", 24*time.Hour),
		RateLimitBurst:     getEnvInt("SOC_RATE_BURST", 20),
		RateLimitPerSecond: getEnvInt("SOC_RATE_PER_SECOND", 10),
	}

	if cfg.JWTSigningSecret == "" {
		if cfg.Env == "production" {
			return Config{}, ErrMissingSecret
		}
		cfg.JWTSigningSecret = devSigningSecret
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
