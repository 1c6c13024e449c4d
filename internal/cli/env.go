package cli

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/catalog"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/config"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/db"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/locks"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/manifest"
	"github.com/Dzo4e2250/mat-tracker-pro-sub001/internal/operations"
)

// env is what a command needs to run operations against the registry.
type env struct {
	store     *db.Store
	svc       *operations.Service
	publisher manifest.Publisher
	closers   []func() error
}

func openEnv(ctx context.Context, opts *RootOptions) (*env, error) {
	cfg := config.Load()
	store, err := db.Open(ctx, opts.DatabaseURL)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	e := &env{store: store, closers: []func() error{store.Close}}

	svcOpts := []operations.Option{operations.WithPolicy(operations.PolicyFromConfig(cfg))}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		e.closers = append(e.closers, client.Close)
		svcOpts = append(svcOpts, operations.WithLocker(locks.NewRedisLocker(client, cfg.AllocationLockTTL)))
	}
	if cfg.MatTypesFile != "" {
		cat, err := catalog.Load(cfg.MatTypesFile)
		if err != nil {
			e.close()
			return nil, WrapExitError(ExitCommandError, "load mat types", err)
		}
		svcOpts = append(svcOpts, operations.WithMatTypes(cat))
	}
	e.publisher, err = manifest.New(ctx, cfg)
	if err != nil {
		e.close()
		return nil, WrapExitError(ExitCommandError, "manifest publisher", err)
	}
	e.svc = operations.NewService(store, svcOpts...)
	return e, nil
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

// publish writes a print manifest when a publisher is configured.
func (e *env) publish(ctx context.Context, m manifest.Manifest) string {
	if e.publisher == nil || len(m.Rows) == 0 {
		return ""
	}
	location, err := e.publisher.Publish(ctx, m)
	if err != nil {
		log.Printf("manifest publish failed for %s: %v", m.Key(), err)
		return ""
	}
	return location
}
