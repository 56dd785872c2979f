package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCacheMiss   = errors.New("cache: key not found")
	ErrLockNotHeld = errors.New("cache: lock not held by this token")
)

// Service is the key/value store behind subscriber settings and the per-key
// leases that serialise history writes across instances.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores value under key; a ttl of zero never expires.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock takes a lease on key for ttl. ok is false while another holder
	// owns it. The returned token is needed to release the lease.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases the lease only if token still owns it, so a holder
	// whose lease expired cannot release its successor's.
	Unlock(ctx context.Context, key, token string) error
	Close() error
}

// Key joins parts with ':' into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func newToken() string { return uuid.NewString() }

// encode stores strings and bytes verbatim and everything else as JSON, the
// same way in every backend.
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(value)
	}
}

func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append((*d)[:0], data...)
		return nil
	default:
		return json.Unmarshal(data, dest)
	}
}
