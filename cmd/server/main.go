package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livrocaixa/backend/internal/cache"
	"livrocaixa/backend/internal/config"
	"livrocaixa/backend/internal/events"
	"livrocaixa/backend/internal/httpapi"
	"livrocaixa/backend/internal/replenishment"
	"livrocaixa/backend/internal/service"
	"livrocaixa/backend/internal/store"
	"livrocaixa/backend/internal/store/memory"
	pgstore "livrocaixa/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 3)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		} else {
			repo = pg
			closers = append(closers, pg.Close)
			log.Println("repository: postgres")
		}
	} else {
		repo = memory.NewSeeded()
		log.Println("repository: in-memory")
	}

	ledgerCache := cache.LedgerCache(cache.NoopLedgerCache{})
	publisher := events.Publisher(events.NoopPublisher{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisLedgerCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache and events", err)
		} else {
			ledgerCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")

			redisEvents := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.EventChannelPrefix)
			publisher = redisEvents
			closers = append(closers, redisEvents.Close)
			log.Println("events: redis pub/sub")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, ledgerCache, publisher, replenishment.NewEngine(), time.Duration(cfg.MovementCacheTTLSecond)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
