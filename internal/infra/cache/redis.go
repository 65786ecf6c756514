package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// RedisURLCache реализует domain.URLCache через Redis. Ключи не истекают.
type RedisURLCache struct {
	client redis.Cmdable
	prefix string
}

var _ domain.URLCache = (*RedisURLCache)(nil)

// NewRedis создаёт кэш ссылок.
func NewRedis(client redis.Cmdable) *RedisURLCache {
	return &RedisURLCache{client: client, prefix: "urlcache"}
}

func (c *RedisURLCache) key(universe, rawURL string) string {
	return fmt.Sprintf("%s:%s:%s", c.prefix, universe, rawURL)
}

// LookupURL возвращает канонический URL для сырой ссылки.
func (c *RedisURLCache) LookupURL(ctx context.Context, universe, rawURL string) (string, bool, error) {
	start := time.Now()
	val, err := c.client.Get(ctx, c.key(universe, rawURL)).Result()
	if errors.Is(err, redis.Nil) {
		metrics.ObserveNetworkRequest("redis", "get", "urlcache", start, nil)
		return "", false, nil
	}
	metrics.ObserveNetworkRequest("redis", "get", "urlcache", start, err)
	if err != nil {
		return "", false, wrapRedisErr(err)
	}
	return val, true, nil
}

// StoreURL запоминает канонический URL без TTL.
func (c *RedisURLCache) StoreURL(ctx context.Context, universe, rawURL, canonicalURL string) error {
	start := time.Now()
	err := c.client.Set(ctx, c.key(universe, rawURL), canonicalURL, 0).Err()
	metrics.ObserveNetworkRequest("redis", "set", "urlcache", start, err)
	if err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func wrapRedisErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return err
}
