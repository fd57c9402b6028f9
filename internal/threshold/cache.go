package threshold

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/acopio-api/internal/quality"
)

// Cache keeps per-fruit-type threshold sets in Redis. Reads outnumber
// threshold mutations by orders of magnitude, so a short TTL plus explicit
// invalidation on write keeps the discount path off the database.
type Cache struct {
	R      *redis.Client
	Prefix string
	TTL    time.Duration
}

func (c *Cache) key(fruitTypeID uuid.UUID) string {
	prefix := c.Prefix
	if prefix == "" {
		prefix = "acopio"
	}
	return fmt.Sprintf("%s:thresholds:%s", prefix, fruitTypeID)
}

// Get returns the cached thresholds. The second return reports a cache hit;
// any Redis error counts as a miss.
func (c *Cache) Get(ctx context.Context, fruitTypeID uuid.UUID) ([]quality.Threshold, bool) {
	if c == nil || c.R == nil {
		return nil, false
	}
	raw, err := c.R.Get(ctx, c.key(fruitTypeID)).Bytes()
	if err != nil {
		return nil, false
	}
	var thresholds []quality.Threshold
	if err := json.Unmarshal(raw, &thresholds); err != nil {
		return nil, false
	}
	return thresholds, true
}

// Set stores the thresholds for a fruit type. Failures are ignored: the
// cache is an optimisation, never the source of truth.
func (c *Cache) Set(ctx context.Context, fruitTypeID uuid.UUID, thresholds []quality.Threshold) {
	if c == nil || c.R == nil {
		return
	}
	raw, err := json.Marshal(thresholds)
	if err != nil {
		return
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	_ = c.R.Set(ctx, c.key(fruitTypeID), raw, ttl).Err()
}

// Invalidate drops the cached thresholds for a fruit type.
func (c *Cache) Invalidate(ctx context.Context, fruitTypeID uuid.UUID) {
	if c == nil || c.R == nil {
		return
	}
	_ = c.R.Del(ctx, c.key(fruitTypeID)).Err()
}
