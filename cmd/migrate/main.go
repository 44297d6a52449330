// Command migrate creates the Postgres session-store schema and the
// ClickHouse position-history schema.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"fleettrack/internal/config"
	"fleettrack/internal/storage"
)

func main() {
	var (
		skipPG = flag.Bool("skip-postgres", false, "Skip the Postgres schema")
		skipCH = flag.Bool("skip-clickhouse", false, "Skip the ClickHouse schema")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if !*skipPG {
		pg, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, cfg.SessionPepper)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		pg.Close()
		log.Printf("postgres schema ready")
	}

	if !*skipCH {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			User:     cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		})
		if err != nil {
			log.Fatalf("clickhouse: %v", err)
		}
		if err := ch.CreateSchema(ctx); err != nil {
			log.Fatalf("clickhouse schema: %v", err)
		}
		_ = ch.Close()
		log.Printf("clickhouse schema ready")
	}
}
