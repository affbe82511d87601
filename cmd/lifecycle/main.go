package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"counselsoc.org/internal/audit"
	"counselsoc.org/internal/auth"
	"counselsoc.org/internal/config"
	"counselsoc.org/internal/lifecycle"
	"counselsoc.org/internal/obs"
)

func main() {
	log.SetFlags(0)
	check := flag.Bool("check", false, "report approved members with no usable credential and exit")
	flag.Parse()

	obs.Init()

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
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	runner := lifecycle.NewRunner(db, auth.NewPGStore(db),
		lifecycle.WithRunnerRecorder(audit.NewRecorder(db)))

	if *check {
		dangling, err := runner.FindDanglingMembers(ctx)
		if err != nil {
			log.Fatalf("check: %v", err)
		}
		for _, d := range dangling {
			fmt.Printf("%s\t%s\n", d.ID, d.FullName)
		}
		if len(dangling) > 0 {
			log.Fatalf("%d approved member(s) without a usable credential", len(dangling))
		}
		return
	}

	runner.Run(ctx)
}
