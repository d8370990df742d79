package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"deal-coach/internal/common/config"
	"deal-coach/internal/common/database"
	"deal-coach/internal/common/logger"
)

// Opened is a configured store plus the resources it holds.
type Opened struct {
	Store   TenantDocumentStore
	closers []func() error
}

func (o *Opened) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Invalidate drops cached copies of the given documents. It is a no-op
// when the store is not cached.
func (o *Opened) Invalidate(ctx context.Context, tenantID, collection string, ids ...string) error {
	cs, ok := o.Store.(*CachedStore)
	if !ok {
		return nil
	}
	var errs []error
	for _, id := range ids {
		if err := cs.Invalidate(ctx, tenantID, collection, id); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s/%s: %w", collection, id, err))
		}
	}
	return errors.Join(errs...)
}

// Open connects the backend named by cfg.Store.Backend, waits for it to
// answer and wraps it with the Redis cache when enabled.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Opened, error) {
	opened := &Opened{}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		opened.closers = append(opened.closers, pg.Close)
		if err := database.WaitReady(ctx, "postgres", pg, 5, time.Second); err != nil {
			_ = opened.Close()
			return nil, err
		}
		ps, err := NewPostgresStore(pg.DB, cfg.Store.Table)
		if err != nil {
			_ = opened.Close()
			return nil, err
		}
		opened.Store = ps

	case config.BackendElasticsearch:
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return nil, err
		}
		if err := database.WaitReady(ctx, "elasticsearch", es, 5, time.Second); err != nil {
			return nil, err
		}
		opened.Store = NewElasticsearchStore(es.Client, cfg.Store.IndexPrefix)

	case config.BackendMemory:
		f, err := os.Open(cfg.Store.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("open fixture: %w", err)
		}
		defer f.Close()
		ms, err := LoadFixture(f)
		if err != nil {
			return nil, err
		}
		opened.Store = ms

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	log.Info("document store ready", map[string]interface{}{"backend": cfg.Store.Backend})

	if cfg.Store.Cache.Enabled {
		rc := database.NewRedis(cfg.Database.Redis)
		opened.closers = append(opened.closers, rc.Close)
		if err := database.WaitReady(ctx, "redis", rc, 3, 500*time.Millisecond); err != nil {
			log.Warn("redis unavailable, document cache disabled", map[string]interface{}{"error": err.Error()})
			return opened, nil
		}
		opened.Store = NewCachedStore(opened.Store, rc.Client,
			config.GetDuration(cfg.Store.Cache.TTL), cfg.Store.Cache.Collections, log)
		log.Info("document cache enabled", map[string]interface{}{
			"collections": cfg.Store.Cache.Collections,
			"ttl_ms":      cfg.Store.Cache.TTL,
		})
	}

	return opened, nil
}
