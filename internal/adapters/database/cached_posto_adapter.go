package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/postocalmo/backend/internal/domain/entities"
	"github.com/postocalmo/backend/internal/domain/providers"
	"github.com/postocalmo/backend/internal/domain/repositories"
	"github.com/rs/zerolog/log"
)

// CachedPostoAdapter wraps a PostoRepository with a read-through cache.
// Single-posto reads are served from cache when possible; every mutation
// delegates first and then drops the cached entry. List results carry a
// short TTL and are reclaimed by expiry rather than invalidation.
type CachedPostoAdapter struct {
	adapter repositories.PostoRepository
	cache   providers.CacheProvider
}

// NewCachedPostoAdapter creates a new cached posto adapter
func NewCachedPostoAdapter(adapter repositories.PostoRepository, cache providers.CacheProvider) repositories.PostoRepository {
	return &CachedPostoAdapter{
		adapter: adapter,
		cache:   cache,
	}
}

// Cache TTLs (in seconds)
const (
	postoByIDTTL = 300
	postoListTTL = 120
)

func postoCacheKey(id string) string {
	return fmt.Sprintf("posto:%s", id)
}

func postoListCacheKey(filter repositories.PostoFilter) string {
	return fmt.Sprintf("postos:list:%s:%s:%d:%d", filter.Specialty, filter.ServiceType, filter.Limit, filter.Offset)
}

// GetByID retrieves a posto by ID with caching
func (a *CachedPostoAdapter) GetByID(ctx context.Context, id string) (*entities.Posto, error) {
	cacheKey := postoCacheKey(id)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var posto entities.Posto
		if err := json.Unmarshal(cached, &posto); err == nil {
			return &posto, nil
		}
		log.Warn().Str("posto_id", id).Msg("failed to unmarshal cached posto")
	}

	posto, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	a.storeAsync(cacheKey, posto, postoByIDTTL)
	return posto, nil
}

// GetByIDs retrieves multiple postos; the fan-out goes straight to the
// underlying adapter, which resolves it in one query.
func (a *CachedPostoAdapter) GetByIDs(ctx context.Context, ids []string) ([]*entities.Posto, error) {
	return a.adapter.GetByIDs(ctx, ids)
}

// List retrieves postos with caching
func (a *CachedPostoAdapter) List(ctx context.Context, filter repositories.PostoFilter) ([]*entities.Posto, error) {
	cacheKey := postoListCacheKey(filter)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var postos []*entities.Posto
		if err := json.Unmarshal(cached, &postos); err == nil {
			return postos, nil
		}
	}

	postos, err := a.adapter.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	a.storeAsync(cacheKey, postos, postoListTTL)
	return postos, nil
}

// SearchNearby is not cached: the origin is continuous, so hit rates are
// negligible and the datastore already orders by distance.
func (a *CachedPostoAdapter) SearchNearby(ctx context.Context, params repositories.NearbyParams) ([]*entities.Posto, error) {
	return a.adapter.SearchNearby(ctx, params)
}

// Create creates a posto and warms nothing; the first read caches it.
func (a *CachedPostoAdapter) Create(ctx context.Context, posto *entities.Posto) error {
	return a.adapter.Create(ctx, posto)
}

// Update delegates and invalidates the cached posto
func (a *CachedPostoAdapter) Update(ctx context.Context, id string, update repositories.PostoUpdate) (*entities.Posto, error) {
	posto, err := a.adapter.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, id)
	return posto, nil
}

// Delete delegates and invalidates the cached posto
func (a *CachedPostoAdapter) Delete(ctx context.Context, id string) error {
	if err := a.adapter.Delete(ctx, id); err != nil {
		return err
	}
	a.invalidate(ctx, id)
	return nil
}

// UpdateServiceStatus delegates and invalidates the cached posto
func (a *CachedPostoAdapter) UpdateServiceStatus(ctx context.Context, id string, serviceType entities.ServiceType, available bool, waitingTime *int) (*entities.Posto, error) {
	posto, err := a.adapter.UpdateServiceStatus(ctx, id, serviceType, available, waitingTime)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, id)
	return posto, nil
}

// AddReview delegates and invalidates the cached posto
func (a *CachedPostoAdapter) AddReview(ctx context.Context, id string, review entities.Review) (*entities.Posto, error) {
	posto, err := a.adapter.AddReview(ctx, id, review)
	if err != nil {
		return nil, err
	}
	a.invalidate(ctx, id)
	return posto, nil
}

// storeAsync writes to cache off the request path. The snapshot is
// marshalled before the goroutine starts: callers mutate the returned
// posto (derived occupancy) after this returns, so only the frozen bytes
// may cross the goroutine boundary.
func (a *CachedPostoAdapter) storeAsync(key string, value interface{}, ttl int) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	go func() {
		if err := a.cache.Set(context.Background(), key, data, ttl); err != nil {
			log.Warn().Err(err).Str("cache_key", key).Msg("failed to cache posto data")
		}
	}()
}

func (a *CachedPostoAdapter) invalidate(ctx context.Context, id string) {
	if err := a.cache.Delete(ctx, postoCacheKey(id)); err != nil {
		log.Warn().Err(err).Str("posto_id", id).Msg("failed to invalidate cached posto")
	}
}
