package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"counselsoc.org/internal/audit"
	"counselsoc.org/internal/auth"
	"counselsoc.org/internal/authcache"
	"counselsoc.org/internal/config"
	"counselsoc.org/internal/httpapi"
	"counselsoc.org/internal/lifecycle"
	"counselsoc.org/internal/obs"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.PostgresDSN == "" {
		log.Fatal("missing SOC_PG_DSN")
	}
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)

	issuer, err := auth.NewTokenIssuer(cfg.JWTSigningSecret)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	// Redis-backed principal cache when a URL is configured, otherwise the
	// in-process map.
	var cache auth.PrincipalCache = authcache.NewMemory(cfg.ProfileCacheTTL)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		cache = authcache.NewRedis(redis.NewClient(redisOpts), cfg.ProfileCacheTTL)
	}

	svc, err := auth.NewService(store, issuer,
		auth.WithCache(cache),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithResetTTL(cfg.ResetTokenTTL),
		auth.WithSetupTTL(cfg.SetupTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	recorder := audit.NewRecorder(db)

	api := httpapi.New(httpapi.Options{
		Auth:               svc,
		Recorder:           recorder,
		ReadyProbe:         httpapi.ReadyProbe{DB: db},
		Version:            version,
		RateLimitBurst:     cfg.RateLimitBurst,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	jobCtx, stopJobs := context.WithCancel(context.Background())
	go lifecycle.NewRunner(db, store, lifecycle.WithRunnerRecorder(recorder)).Schedule(jobCtx, cfg.ExpiryInterval)

	log.Printf("Starting counselsoc-api %s on %s (env=%s)", version, cfg.Addr, cfg.Env)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
