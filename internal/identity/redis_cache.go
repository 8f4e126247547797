package identity

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/polaris-ecosystems/rfp-agent/internal/telemetry"
)

// redisIdentityCache adapts *redis.Client to the identityCache interface so
// identity resolution can share an existing Redis instance (keys are
// namespaced by prefix) instead of standing up a second Pulse/rmap cluster
// just for this package.
type redisIdentityCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache wraps rdb as an identity cache. keyPrefix namespaces keys
// (e.g. "identity:") so the identity cache doesn't collide with other
// callers sharing the same Redis instance.
func NewRedisCache(rdb *redis.Client, keyPrefix string) *redisIdentityCache {
	return &redisIdentityCache{rdb: rdb, prefix: keyPrefix}
}

func (c *redisIdentityCache) Get(key string) (string, bool) {
	val, err := c.rdb.Get(context.Background(), c.prefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *redisIdentityCache) Set(ctx context.Context, key, value string) (string, error) {
	if err := c.rdb.Set(ctx, c.prefix+key, value, cacheTTL).Err(); err != nil {
		return "", err
	}
	return value, nil
}

func (c *redisIdentityCache) Delete(ctx context.Context, key string) (string, error) {
	prev, _ := c.Get(key)
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return "", err
	}
	return prev, nil
}

func (c *redisIdentityCache) Keys() []string {
	var keys []string
	iter := c.rdb.Scan(context.Background(), 0, c.prefix+"*", 0).Iterator()
	for iter.Next(context.Background()) {
		keys = append(keys, iter.Val()[len(c.prefix):])
	}
	return keys
}

// NewResolverWithRedis constructs a Resolver backed by a shared Redis
// instance rather than a Pulse replicated map, for deployments that don't
// otherwise run Pulse.
func NewResolverWithRedis(directory DirectoryClient, profiles ProfileStore, lookup DirectoryLookup, rdb *redis.Client, logger telemetry.Logger) *Resolver {
	var cache identityCache
	if rdb != nil {
		cache = NewRedisCache(rdb, "identity:")
	}
	return newResolver(directory, profiles, lookup, cache, logger)
}
