// Package cache provides the Redis prediction cache adapter.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const predictionKeyPrefix = "inquiry:prediction:"

// PredictionCache implements out.PredictionCache on Redis. Entries are
// serialized prediction triples keyed by the canonical-text fingerprint.
type PredictionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPredictionCache creates a prediction cache with the given entry TTL.
func NewPredictionCache(client *redis.Client, ttl time.Duration) *PredictionCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PredictionCache{client: client, ttl: ttl}
}

// Get returns the cached payload, or (nil, nil) on miss.
func (c *PredictionCache) Get(ctx context.Context, fingerprint string) ([]byte, error) {
	data, err := c.client.Get(ctx, predictionKeyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Set stores the payload under the fingerprint with the configured TTL.
func (c *PredictionCache) Set(ctx context.Context, fingerprint string, value []byte) error {
	return c.client.Set(ctx, predictionKeyPrefix+fingerprint, value, c.ttl).Err()
}
