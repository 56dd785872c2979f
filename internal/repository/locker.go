package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalEngine/internal/domain/repository"
	"SignalEngine/pkg/cache"
)

// KeyedMutex serialises callers per key inside one process. Entries are
// reference counted and dropped once no caller holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

var _ repository.KeyLocker = (*KeyedMutex)(nil)

func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}

// RedisLocker layers a token-owned Redis lease over a local KeyedMutex so that
// several engine instances sharing one Redis serialise writes per key.
type RedisLocker struct {
	local *KeyedMutex
	cache cache.Service
	ttl   time.Duration
	retry time.Duration
}

func NewRedisLocker(c cache.Service, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{local: NewKeyedMutex(), cache: c, ttl: ttl, retry: 25 * time.Millisecond}
}

var _ repository.KeyLocker = (*RedisLocker)(nil)

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	lockKey := "lock:" + key
	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()
	var token string
	for {
		tok, ok, err := r.cache.TryLock(ctx, lockKey, r.ttl)
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			token = tok
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			_ = r.cache.Unlock(context.Background(), lockKey, token)
			unlockLocal()
		})
	}, nil
}
