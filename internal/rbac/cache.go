package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is an optional Redis read-through cache for effective permissions.
// A nil Cache (or one without a client) is a no-op, so the service works
// without Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("rbac:perms:%d", userID)
}

// Get returns the cached permission set, with a second return of false on
// miss or on any Redis fault.
func (c *Cache) Get(ctx context.Context, userID int64) ([]Permission, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []Permission
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// Set stores the permission set; a Redis fault is reported but never fatal
// to the request that loaded the permissions.
func (c *Cache) Set(ctx context.Context, userID int64, perms []Permission) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(userID), payload, c.ttl).Err()
}

// Invalidate drops the cached set for one account. Role and permission
// mutations must call this so stale grants never outlive the mutation.
func (c *Cache) Invalidate(ctx context.Context, userID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKey(userID)).Err()
}
