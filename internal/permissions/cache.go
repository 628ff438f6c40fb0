package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/colegio-portal/colegio-portal/internal/authz"
)

const cacheVersionKey = "permissions:version"

// Cache is a read-through Redis cache for permission views. A single
// global version number is part of every key; invalidation bumps the
// version so stale views simply stop being addressable. With a nil
// client every read falls through to the loader.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchView loads a cached view or computes it with the loader. Cache
// failures degrade to a direct load, they never fail the request.
func (c *Cache) FetchView(ctx context.Context, userID int64, loader func(context.Context) (authz.PermissionView, error)) (authz.PermissionView, bool, error) {
	if loader == nil {
		return authz.PermissionView{}, false, errors.New("permissions: cache loader required")
	}
	if c == nil || c.client == nil {
		view, err := loader(ctx)
		return view, false, err
	}
	key, keyErr := c.viewKey(ctx, userID)
	if keyErr == nil {
		if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var view authz.PermissionView
			if err := json.Unmarshal(payload, &view); err == nil {
				return view, true, nil
			}
		}
	}
	view, err := loader(ctx)
	if err != nil {
		return authz.PermissionView{}, false, err
	}
	if keyErr == nil {
		if payload, err := json.Marshal(view); err == nil {
			_ = c.client.Set(ctx, key, payload, c.ttl).Err()
		}
	}
	return view, false, nil
}

// Bump invalidates every cached view by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) viewKey(ctx context.Context, userID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("permissions:view:%d:v%d", userID, ver), nil
}
