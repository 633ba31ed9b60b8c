package compplan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mmn-engine/pkg/logger"
)

// KeyValueStore is the slice of the redis client the plan cache needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PlanKey(tenantID string) string
}

// CachedProvider memoizes resolved plans in redis. Cache failures degrade to
// reading through the wrapped provider.
type CachedProvider struct {
	next  Provider
	store KeyValueStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCachedProvider wraps next with a redis-backed plan cache.
func NewCachedProvider(next Provider, store KeyValueStore, ttl time.Duration, logg *logger.Logger) (*CachedProvider, error) {
	if next == nil {
		return nil, fmt.Errorf("plan provider required")
	}
	if store == nil {
		return nil, fmt.Errorf("plan cache store required")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logg == nil {
		logg = logger.Discard()
	}
	return &CachedProvider{next: next, store: store, ttl: ttl, logg: logg}, nil
}

func (c *CachedProvider) PlanFor(ctx context.Context, tenantID uuid.UUID) (*Plan, error) {
	key := c.store.PlanKey(tenantID.String())
	if raw, err := c.store.Get(ctx, key); err == nil && raw != "" {
		var plan Plan
		if err := json.Unmarshal([]byte(raw), &plan); err == nil {
			return &plan, nil
		}
		c.logg.Warn(c.logg.WithTenantID(ctx, tenantID.String()), "discarding unreadable cached plan")
	}

	plan, err := c.next.PlanFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(plan)
	if err != nil {
		return plan, nil
	}
	if err := c.store.Set(ctx, key, string(payload), c.ttl); err != nil {
		c.logg.Warn(c.logg.WithTenantID(ctx, tenantID.String()), "plan cache write failed: "+err.Error())
	}
	return plan, nil
}

// Invalidate drops the cached plan of a tenant after its overrides change.
func (c *CachedProvider) Invalidate(ctx context.Context, tenantID uuid.UUID) error {
	return c.store.Del(ctx, c.store.PlanKey(tenantID.String()))
}
