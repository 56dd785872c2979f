package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"SignalEngine/internal/domain/models"
	"SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/cache"
)

const (
	subscriberPrefix   = "subscriber"
	subscriberIndexKey = "subscribers:configured"
)

// CacheSubscriberRepository stores subscriber settings in a cache.Service,
// either Redis for shared state or MemoryCache for a single process. The
// configured-users index is rewritten under a KeyLocker lease.
type CacheSubscriberRepository struct {
	cache  cache.Service
	index  cache.Service
	locker repository.KeyLocker
}

type SubscriberOption func(*CacheSubscriberRepository)

// WithIndexStore keeps the configured-users index in s instead of the
// subscriber cache. Instances sharing Redis pass the Redis cache here so the
// index is never read from a local L1 copy.
func WithIndexStore(s cache.Service) SubscriberOption {
	return func(r *CacheSubscriberRepository) { r.index = s }
}

// WithIndexLocker serialises index updates; a RedisLocker covers every
// instance sharing the store.
func WithIndexLocker(l repository.KeyLocker) SubscriberOption {
	return func(r *CacheSubscriberRepository) { r.locker = l }
}

func NewCacheSubscriberRepository(c cache.Service, opts ...SubscriberOption) *CacheSubscriberRepository {
	r := &CacheSubscriberRepository{cache: c}
	for _, opt := range opts {
		opt(r)
	}
	if r.index == nil {
		r.index = c
	}
	if r.locker == nil {
		r.locker = NewKeyedMutex()
	}
	return r
}

var _ repository.SubscriberRepository = (*CacheSubscriberRepository)(nil)

func (r *CacheSubscriberRepository) Get(ctx context.Context, userID string) (*models.Subscriber, error) {
	var sub models.Subscriber
	if err := r.cache.Get(ctx, cache.Key(subscriberPrefix, userID), &sub); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, models.NotFound("subscriber", userID)
		}
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return &sub, nil
}

func (r *CacheSubscriberRepository) Save(ctx context.Context, sub *models.Subscriber) error {
	if err := r.cache.Set(ctx, cache.Key(subscriberPrefix, sub.UserID), sub, 0); err != nil {
		return fmt.Errorf("save subscriber: %w", err)
	}
	if sub.Thresholds == nil {
		return nil
	}

	unlock, err := r.locker.Lock(ctx, subscriberIndexKey)
	if err != nil {
		return fmt.Errorf("lock subscriber index: %w", err)
	}
	defer unlock()
	ids, err := r.configured(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == sub.UserID {
			return nil
		}
	}
	ids = append(ids, sub.UserID)
	sort.Strings(ids)
	if err := r.index.Set(ctx, subscriberIndexKey, ids, 0); err != nil {
		return fmt.Errorf("save subscriber index: %w", err)
	}
	return nil
}

func (r *CacheSubscriberRepository) ListConfigured(ctx context.Context) ([]string, error) {
	return r.configured(ctx)
}

func (r *CacheSubscriberRepository) configured(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.index.Get(ctx, subscriberIndexKey, &ids); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscriber index: %w", err)
	}
	return ids, nil
}
