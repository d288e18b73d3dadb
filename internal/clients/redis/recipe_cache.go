package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/platewise/platewise-backend/internal/logger"
	"github.com/platewise/platewise-backend/internal/types"
)

const keyPrefix = "recipes:"

// RecipeCache is the redis flavor of the recipe search cache. Expiry is
// native redis TTL, so reads never see a stale entry.
type RecipeCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewRecipeCache(log *logger.Logger, ttl time.Duration) (*RecipeCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RecipeCache{
		log: log.With("client", "RedisRecipeCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

func (c *RecipeCache) Get(ctx context.Context, queryKey string) ([]types.RecipeResult, bool, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+queryKey).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var results []types.RecipeResult
	if err := json.Unmarshal(raw, &results); err != nil {
		c.log.Warn("Discarding unreadable recipe cache entry", "query_key", queryKey, "error", err)
		return nil, false, nil
	}
	return results, true, nil
}

func (c *RecipeCache) Put(ctx context.Context, queryKey string, results []types.RecipeResult) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyPrefix+queryKey, raw, c.ttl).Err()
}

func (c *RecipeCache) Close() error {
	return c.rdb.Close()
}
