package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fleettrack/internal/config"
	"fleettrack/internal/feed"
	"fleettrack/internal/httpapi"
	"fleettrack/internal/storage"
	"fleettrack/internal/track"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	pg, err := storage.OpenPostgres(startCtx, cfg.DatabaseURL, cfg.SessionPepper)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pg.Close()

	ch, err := storage.OpenClickHouse(startCtx, storage.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		User:     cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		log.Fatalf("clickhouse: %v", err)
	}
	defer func() { _ = ch.Close() }()

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var mirror track.Mirror
	var redisMirror *storage.RedisMirror
	if cfg.RedisAddr != "" {
		redisMirror, err = storage.OpenRedisMirror(startCtx, cfg.RedisAddr, cfg.StaleAfter)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		redisMirror.Start(bgCtx)
		mirror = redisMirror
		log.Printf("mirroring latest positions to redis at %s", cfg.RedisAddr)
	}

	engine := track.New(track.Options{
		Sink:             ch,
		Mirror:           mirror,
		ReapInterval:     cfg.ReapInterval,
		StaleAfter:       cfg.StaleAfter,
		FlushInterval:    cfg.FlushInterval,
		FlushTimeout:     cfg.FlushTimeout,
		SubscriberBuffer: cfg.SubscriberBuffer,
	})
	engine.Start(bgCtx)

	var natsFeed *feed.NATSFeed
	if cfg.NATSURL != "" {
		natsFeed, err = feed.StartNATS(cfg.NATSURL, cfg.NATSSubject, engine)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Engine:         engine,
			Sessions:       pg,
			History:        ch,
			MaxReportBytes: cfg.MaxReportBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s (reap=%s stale=%s flush=%s)",
			cfg.HTTPAddr, cfg.ReapInterval, cfg.StaleAfter, cfg.FlushInterval)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if natsFeed != nil {
		natsFeed.Close()
	}
	engine.Stop()
	bgCancel()
	if redisMirror != nil {
		_ = redisMirror.Close()
	}
}
