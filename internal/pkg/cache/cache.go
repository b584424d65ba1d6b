package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	mu     sync.Mutex
)

// SetupCache initializes the Redis connection used by the job queue
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	c := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if pong, err := c.Ping(ctx).Result(); err != nil {
		log.Warnf("[Cache] Could not connect to Redis at %s: %v", c.Options().Addr, err)
	} else {
		log.Infof("[Cache] Connected to Redis: %s", pong)
	}

	mu.Lock()
	client = c
	mu.Unlock()
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	mu.Lock()
	c := client
	mu.Unlock()
	if c == nil {
		SetupCache()
		mu.Lock()
		c = client
		mu.Unlock()
	}
	return c
}

// SetClient replaces the shared client, e.g. with one pointing at miniredis.
func SetClient(c *redis.Client) {
	mu.Lock()
	defer mu.Unlock()
	client = c
}

// Ping checks the connection for health probes.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// Close releases the shared client.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
