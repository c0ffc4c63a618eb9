package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/surveillance-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for single-alert lookups. Alerts are immutable, so entries never
// need invalidation; they simply expire.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, warm cache) ---

func (s *CachedStore) InsertAlerts(ctx context.Context, alerts []model.Alert) ([]model.Alert, error) {
	inserted, err := s.primary.InsertAlerts(ctx, alerts)
	if err != nil {
		return nil, err
	}
	for i := range inserted {
		s.cacheAlert(ctx, &inserted[i])
	}
	return inserted, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAlert(ctx context.Context, id string) (*model.Alert, error) {
	data, err := s.rdb.Get(ctx, alertKey(id)).Bytes()
	if err == nil {
		var a model.Alert
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	// Cache miss: read from primary.
	a, err := s.primary.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheAlert(ctx, a)
	return a, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListAlerts(ctx context.Context, f Filter) ([]model.Alert, error) {
	return s.primary.ListAlerts(ctx, f)
}

// --- Cache helpers ---

func (s *CachedStore) cacheAlert(ctx context.Context, a *model.Alert) {
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, alertKey(a.AlertID), data, s.ttl)
	}
}

func alertKey(id string) string { return fmt.Sprintf("alert:%s", id) }
