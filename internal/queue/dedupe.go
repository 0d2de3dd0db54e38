package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupePrefix = "hookrelay:dedupe:"

// Deduper remembers keys for a window so redelivered webhooks are enqueued once.
type Deduper interface {
	// Claim returns true the first time key is seen within the window.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key, so a delivery that failed to enqueue can be retried.
	Release(ctx context.Context, key string) error
}

type redisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisDeduper{client: client, ttl: ttl}
}

func (d *redisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, dedupePrefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming dedupe key: %w", err)
	}
	return ok, nil
}

func (d *redisDeduper) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, dedupePrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing dedupe key: %w", err)
	}
	return nil
}
