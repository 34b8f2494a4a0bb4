package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/audience-orchestrator/utils"
	"github.com/redis/go-redis/v9"
)

// EstimateCacheKeyPrefix prefixes every reach estimate cache key
const EstimateCacheKeyPrefix = "audiences::fetch::"

// EstimateCacheKey derives the content address of a targeting spec for one fetch day.
// encoding/json sorts map keys, so equal specs always hash alike.
func EstimateCacheKey(spec map[string]any, fetchDate string) (string, error) {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to encode targeting spec: %w", err)
	}
	return EstimateCacheKeyPrefix + utils.SHA1Hex(append(specJSON, fetchDate...)), nil
}

// EstimateCache is a redis-backed cache of raw reach estimate answers
type EstimateCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewEstimateCache(client redis.Cmdable, prefix string, ttl time.Duration) *EstimateCache {
	if ttl <= 0 {
		ttl = utils.EstimateCacheTTL
	}
	return &EstimateCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached answer for key. A miss is (nil, false, nil).
func (c *EstimateCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, errors.New("estimate cache client not configured")
	}
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read estimate cache: %w", err)
	}
	return raw, true, nil
}

// Put stores the answer unless the key already holds one.
// It reports whether this call wrote the value.
func (c *EstimateCache) Put(ctx context.Context, key string, raw []byte) (bool, error) {
	if c == nil || c.client == nil {
		return false, errors.New("estimate cache client not configured")
	}
	ok, err := c.client.SetNX(ctx, c.prefix+key, raw, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to write estimate cache: %w", err)
	}
	return ok, nil
}
