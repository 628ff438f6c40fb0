package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func sampleView(userID int64) authz.PermissionView {
	return authz.PermissionView{
		UserID: userID,
		RoleID: "profesor",
		Level:  authz.LevelTactical,
		Services: map[string]authz.ServiceDecision{
			"admisiones": {
				Decision:      authz.Decision{HasPermission: true, HasHierarchy: true, CanAccess: true},
				ServiceName:   "Admisiones",
				RequiredLevel: authz.LevelTactical,
			},
		},
		AccessibleCount: 1,
	}
}

func TestCacheReadThrough(t *testing.T) {
	cache := newTestCache(t)
	loads := 0
	loader := func(ctx context.Context) (authz.PermissionView, error) {
		loads++
		return sampleView(7), nil
	}

	view, hit, err := cache.FetchView(context.Background(), 7, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, loads)
	assert.Equal(t, int64(7), view.UserID)

	view, hit, err = cache.FetchView(context.Background(), 7, loader)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, loads, "second read must come from cache")
	assert.True(t, view.Services["admisiones"].CanAccess)
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	loads := 0
	loader := func(ctx context.Context) (authz.PermissionView, error) {
		loads++
		return sampleView(7), nil
	}

	_, _, err := cache.FetchView(context.Background(), 7, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(context.Background()))

	_, hit, err := cache.FetchView(context.Background(), 7, loader)
	require.NoError(t, err)
	assert.False(t, hit, "bump must invalidate cached views")
	assert.Equal(t, 2, loads)
}

func TestCacheVersionInitialises(t *testing.T) {
	cache := newTestCache(t)
	ver, err := cache.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ver)

	require.NoError(t, cache.Bump(context.Background()))
	ver, err = cache.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), ver)
}

func TestCacheNilClientFallsThrough(t *testing.T) {
	cache := NewCache(nil, time.Minute)
	loads := 0
	loader := func(ctx context.Context) (authz.PermissionView, error) {
		loads++
		return sampleView(9), nil
	}
	for i := 0; i < 2; i++ {
		_, hit, err := cache.FetchView(context.Background(), 9, loader)
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, loads)
}
