package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLock necesita TEST_REDIS_ADDR; cada test usa un prefijo propio.
func newTestLock(t *testing.T) (*Lock, *redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), addr, os.Getenv("TEST_REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "patient-access:test:" + uuid.NewString() + ":"
	return New(client, prefix), client, prefix
}

func TestLock_AcquireContentionRelease(t *testing.T) {
	ctx := context.Background()
	lock, client, prefix := newTestLock(t)
	key := "pat-1|org-1|doc-1"

	release, ok, err := lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, release)

	_, ok, err = lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not get the lock")

	// Otra clave no compite.
	releaseOther, ok, err := lock.TryAcquire(ctx, "pat-2|org-1|doc-1", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	releaseOther()

	release()
	n, err := client.Exists(ctx, prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	release2, ok, err := lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	release2()
}

func TestLock_ReleaseOnlyDeletesOwnToken(t *testing.T) {
	ctx := context.Background()
	lock, client, prefix := newTestLock(t)
	key := "pat-1|org-1|doc-1"

	stale, ok, err := lock.TryAcquire(ctx, key, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	require.Eventually(t, func() bool {
		n, err := client.Exists(ctx, prefix+key).Result()
		return err == nil && n == 0
	}, 2*time.Second, 20*time.Millisecond)

	current, ok, err := lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	holder, err := client.Get(ctx, prefix+key).Result()
	require.NoError(t, err)

	// El dueño viejo libera tarde: no puede borrar la clave del nuevo.
	stale()
	got, err := client.Get(ctx, prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, holder, got)

	_, ok, err = lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	current()
	n, err := client.Exists(ctx, prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestLock_ReleaseSurvivesCanceledRequest(t *testing.T) {
	lock, client, prefix := newTestLock(t)
	key := "pat-3|org-1|doc-1"

	ctx, cancel := context.WithCancel(context.Background())
	release, ok, err := lock.TryAcquire(ctx, key, 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	release()

	n, err := client.Exists(context.Background(), prefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
