package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/NEHONIX/FortifyJS-sub002/pkg/config"
)

// connectTimeout bounds the boot-time reachability probe.
const connectTimeout = 5 * time.Second

// RedisClient wraps the shared connection used by the state store, the
// distributed scaling lock, and the redis queue provider.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects using cfg.Redis and fails fast when the server is
// unreachable, so a bad addr surfaces at boot instead of on the first
// snapshot write.
func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Redis.Addr, err)
	}

	return &RedisClient{client: client}, nil
}

// GetClient returns the underlying go-redis client.
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// Close releases the connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
