package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/catalog"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	internalhttp "github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/http"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/jobs"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/locks"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer store.Close()

	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}

	opts := []operations.Option{operations.WithPolicy(operations.PolicyFromConfig(cfg))}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer rdb.Close()
		opts = append(opts, operations.WithLocker(locks.NewRedisLocker(rdb, cfg.AllocationLockTTL)))
	}
	if cfg.MatTypesFile != "" {
		cat, err := catalog.Load(cfg.MatTypesFile)
		if err != nil {
			log.Fatalf("mat types load failed: %v", err)
		}
		opts = append(opts, operations.WithMatTypes(cat))
	}
	publisher, err := manifest.New(ctx, cfg)
	if err != nil {
		log.Fatalf("manifest publisher init failed: %v", err)
	}

	svc := operations.NewService(store, opts...)
	jobs.StartLongTestJob(ctx, cfg, svc)

	server, err := internalhttp.NewServer(cfg, svc, store, publisher)
	if err != nil {
		log.Fatalf("server init failed: %v", err)
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("mat tracker http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
