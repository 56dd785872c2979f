package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestMemoryCache_SetGetExpire(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "p", point{1, 2}, 0))
	var got point
	require.NoError(t, mc.Get(ctx, "p", &got))
	assert.Equal(t, point{1, 2}, got)

	require.NoError(t, mc.Set(ctx, "short", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var s string
	assert.ErrorIs(t, mc.Get(ctx, "short", &s), ErrCacheMiss)

	require.NoError(t, mc.Delete(ctx, "p", "absent"))
	assert.ErrorIs(t, mc.Get(ctx, "p", &got), ErrCacheMiss)
}

func TestMemoryCache_StoresCopies(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ids := []string{"a", "b"}
	require.NoError(t, mc.Set(ctx, "ids", ids, 0))
	ids[0] = "z"

	var got []string
	require.NoError(t, mc.Get(ctx, "ids", &got))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestMemoryCache_UnboundedByDefault(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		require.NoError(t, mc.Set(ctx, fmt.Sprintf("k%d", i), i, 0))
	}
	assert.Equal(t, 5000, mc.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "a", 1, 0))
	require.NoError(t, mc.Set(ctx, "b", 2, 0))
	var v int
	require.NoError(t, mc.Get(ctx, "a", &v))
	require.NoError(t, mc.Set(ctx, "c", 3, 0))

	assert.ErrorIs(t, mc.Get(ctx, "b", &v), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &v))
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCache_LeaseIsOwnedByToken(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	token, ok, err := mc.TryLock(ctx, "lock:x", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = mc.TryLock(ctx, "lock:x", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock:x", "someone-else"), ErrLockNotHeld)
	require.NoError(t, mc.Unlock(ctx, "lock:x", token))
	assert.ErrorIs(t, mc.Unlock(ctx, "lock:x", token), ErrLockNotHeld)
}

func TestMemoryCache_ExpiredLeaseCannotReleaseSuccessor(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	stale, ok, err := mc.TryLock(ctx, "lock:x", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(5 * time.Millisecond)

	fresh, ok, err := mc.TryLock(ctx, "lock:x", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, mc.Unlock(ctx, "lock:x", stale), ErrLockNotHeld)
	_, ok, _ = mc.TryLock(ctx, "lock:x", time.Second)
	assert.False(t, ok)
	require.NoError(t, mc.Unlock(ctx, "lock:x", fresh))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "subscriber:alice", Key("subscriber", "alice"))
	assert.Equal(t, "one", Key("one"))
}
