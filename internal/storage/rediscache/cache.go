// Package rediscache keeps computed phase rankings in Redis. Each phase has a
// generation counter; rankings are stored under the generation current when
// their build started and invalidation simply increments the counter.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
)

const defaultPrefix = "review:"

var _ review.RankingCache = (*Cache)(nil)

type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger logger.Logger
}

func New(client redis.Cmdable, ttl time.Duration, log logger.Logger) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		prefix: defaultPrefix,
		logger: log.WithFields(map[string]interface{}{"component": "ranking-cache"}),
	}
}

func (c *Cache) generationKey(cycleID string, phase review.Phase) string {
	return fmt.Sprintf("%sgen:%s:%s", c.prefix, cycleID, phase)
}

func (c *Cache) rankingKey(key review.RankingKey, generation int64) string {
	track := key.Track
	if track == "" {
		track = "_all"
	}
	return fmt.Sprintf("%sranking:%s:%s:%s:%s", c.prefix, key.CycleID, key.Phase, track, strconv.FormatInt(generation, 10))
}

func (c *Cache) generation(ctx context.Context, cycleID string, phase review.Phase) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(cycleID, phase)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ranking generation: %w", err)
	}
	return gen, nil
}

func (c *Cache) GetRanking(ctx context.Context, key review.RankingKey) (*review.Ranking, int64, error) {
	gen, err := c.generation(ctx, key.CycleID, key.Phase)
	if err != nil {
		return nil, 0, err
	}

	data, err := c.client.Get(ctx, c.rankingKey(key, gen)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read cached ranking: %w", err)
	}

	var r review.Ranking
	if err := json.Unmarshal(data, &r); err != nil {
		// treat an unreadable entry as a miss; the rebuild overwrites it
		c.logger.Warn("discarding corrupt cached ranking", map[string]interface{}{
			"key":   c.rankingKey(key, gen),
			"error": err.Error(),
		})
		return nil, gen, nil
	}
	return &r, gen, nil
}

func (c *Cache) PutRanking(ctx context.Context, key review.RankingKey, generation int64, r *review.Ranking) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	if err := c.client.Set(ctx, c.rankingKey(key, generation), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("write cached ranking: %w", err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, cycleID string, phase review.Phase) error {
	if err := c.client.Incr(ctx, c.generationKey(cycleID, phase)).Err(); err != nil {
		return fmt.Errorf("bump ranking generation: %w", err)
	}
	return nil
}
