package feedback

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKey = "flywheel:best_combination"

// Cache memoizes the winning combination in Redis. The underlying
// aggregation scans the full sample history, which is too expensive to rerun
// on every planner tick; a stale winner for one TTL is harmless. Any cache
// failure falls through to the live aggregation.
type Cache struct {
	source BestSource
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewCache(source BestSource, client *redis.Client, ttl time.Duration, log *slog.Logger) *Cache {
	return &Cache{source: source, client: client, ttl: ttl, log: log}
}

type cachedBest struct {
	Best  Best `json:"best"`
	Found bool `json:"found"`
}

func (c *Cache) BestCombination(ctx context.Context) (Best, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var cb cachedBest
		if jsonErr := json.Unmarshal(raw, &cb); jsonErr == nil {
			return cb.Best, cb.Found, nil
		}
	} else if err != redis.Nil {
		c.log.Warn("best-combination cache read failed", "error", err)
	}

	best, found, err := c.source.BestCombination(ctx)
	if err != nil {
		return Best{}, false, err
	}

	buf, err := json.Marshal(cachedBest{Best: best, Found: found})
	if err == nil {
		if setErr := c.client.Set(ctx, cacheKey, buf, c.ttl).Err(); setErr != nil {
			c.log.Warn("best-combination cache write failed", "error", setErr)
		}
	}
	return best, found, nil
}

var _ BestSource = (*Cache)(nil)
