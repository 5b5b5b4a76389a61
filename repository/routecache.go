package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"msgstore/observability"
)

// RouteCache remembers which conversation a msgId belongs to. The mapping
// never changes once written, so a hit lets a msgId-only lookup target one
// shard instead of all of them. Cache failures are never fatal.
type RouteCache interface {
	Lookup(ctx context.Context, msgID string) (chatID string, ok bool)
	Remember(ctx context.Context, msgID, chatID string)
}

type RedisRouteCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisRouteCache(addr string, ttl time.Duration, log *zap.Logger) *RedisRouteCache {
	return &RedisRouteCache{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		}),
		ttl: ttl,
		log: log,
	}
}

func routeKey(msgID string) string { return "msgroute:" + msgID }

func (c *RedisRouteCache) Lookup(ctx context.Context, msgID string) (string, bool) {
	chatID, err := c.client.Get(ctx, routeKey(msgID)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		observability.RouteCacheLookups.WithLabelValues("miss").Inc()
		return "", false
	case err != nil:
		observability.RouteCacheLookups.WithLabelValues("error").Inc()
		c.log.Warn("route cache lookup failed", zap.String("msgId", msgID), zap.Error(err))
		return "", false
	}
	observability.RouteCacheLookups.WithLabelValues("hit").Inc()
	return chatID, true
}

func (c *RedisRouteCache) Remember(ctx context.Context, msgID, chatID string) {
	if err := c.client.Set(ctx, routeKey(msgID), chatID, c.ttl).Err(); err != nil {
		c.log.Warn("route cache write failed", zap.String("msgId", msgID), zap.Error(err))
	}
}

// Ping checks the cache is reachable.
func (c *RedisRouteCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisRouteCache) Close() error {
	return c.client.Close()
}

// NopRouteCache is used when no Redis address is configured.
type NopRouteCache struct{}

func (NopRouteCache) Lookup(context.Context, string) (string, bool) { return "", false }

func (NopRouteCache) Remember(context.Context, string, string) {}
