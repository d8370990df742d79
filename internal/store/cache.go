package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"deal-coach/internal/common/logger"
	"deal-coach/internal/common/metrics"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "dealctx:doc:"

// CachedStore is a read-through Redis cache for Get on selected
// collections, such as the tenant learning-data singleton. Queries and
// other collections go straight to the wrapped store. Redis failures are
// logged and bypassed.
type CachedStore struct {
	next        TenantDocumentStore
	rdb         redis.Cmdable
	ttl         time.Duration
	collections map[string]struct{}
	log         logger.Logger
}

func NewCachedStore(next TenantDocumentStore, rdb redis.Cmdable, ttl time.Duration, collections []string, log logger.Logger) *CachedStore {
	set := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		set[c] = struct{}{}
	}
	return &CachedStore{next: next, rdb: rdb, ttl: ttl, collections: set, log: log}
}

type cachedDoc struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func cacheKey(tenantID, collection, id string) string {
	return cacheKeyPrefix + tenantID + ":" + collection + ":" + id
}

func (c *CachedStore) Get(ctx context.Context, tenantID, collection, id string) (*Document, error) {
	if _, ok := c.collections[collection]; !ok {
		return c.next.Get(ctx, tenantID, collection, id)
	}

	key := cacheKey(tenantID, collection, id)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cd cachedDoc
		if jsonErr := json.Unmarshal(raw, &cd); jsonErr == nil {
			metrics.CacheRequests.WithLabelValues("hit").Inc()
			return &Document{ID: cd.ID, Data: cd.Data}, nil
		}
		metrics.CacheRequests.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	default:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		c.log.Warn("document cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	doc, err := c.next.Get(ctx, tenantID, collection, id)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(cachedDoc{ID: doc.ID, Data: doc.Data}); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Warn("document cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return doc, nil
}

func (c *CachedStore) Query(ctx context.Context, tenantID string, q Query) ([]Document, error) {
	return c.next.Query(ctx, tenantID, q)
}

// Invalidate drops a cached document.
func (c *CachedStore) Invalidate(ctx context.Context, tenantID, collection, id string) error {
	return c.rdb.Del(ctx, cacheKey(tenantID, collection, id)).Err()
}
