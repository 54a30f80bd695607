package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/metrics"
)

// LeaderboardSource is the backing store a cache reads through to.
type LeaderboardSource interface {
	Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error)
}

// LeaderboardCache caches leaderboard pages in Redis so every instance shares them.
// Generation counter: INCR scores:leaderboard:{chapter}:gen
// Pages (JSON):       SET  scores:leaderboard:{chapter}:{gen}:{limit}
// Bumping the generation orphans every page of the chapter; orphans expire by TTL.
// Redis failures degrade to reading the source directly.
type LeaderboardCache struct {
	client  *redis.Client
	source  LeaderboardSource
	ttl     time.Duration
	sf      singleflight.Group
	metrics *metrics.Recorder

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, source LeaderboardSource, ttl time.Duration, rec *metrics.Recorder) *LeaderboardCache {
	return &LeaderboardCache{
		client:  client,
		source:  source,
		ttl:     ttl,
		metrics: rec,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	if c.ttl <= 0 {
		return c.source.Top(ctx, chapterID, limit)
	}

	gen, err := c.generation(ctx, chapterID)
	if err != nil {
		c.metrics.CacheLookup(false)
		return c.source.Top(ctx, chapterID, limit)
	}
	key := c.pageKey(chapterID, gen, limit)

	if entries, ok := c.read(ctx, key); ok {
		c.metrics.CacheLookup(true)
		return entries, nil
	}
	c.metrics.CacheLookup(false)

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if entries, ok := c.read(ctx, key); ok {
			return entries, nil
		}

		entries, err := c.source.Top(ctx, chapterID, limit)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(entries); err == nil {
			_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	// callers sharing the flight must not share the slice
	return copyAttempts(result.([]domain.Attempt)), nil
}

// Invalidate moves the chapter to a new generation.
func (c *LeaderboardCache) Invalidate(ctx context.Context, chapterID string) error {
	return c.client.Incr(ctx, c.generationKey(chapterID)).Err()
}

func (c *LeaderboardCache) generation(ctx context.Context, chapterID string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(chapterID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *LeaderboardCache) read(ctx context.Context, key string) ([]domain.Attempt, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var entries []domain.Attempt
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	if entries == nil {
		entries = []domain.Attempt{}
	}
	return entries, true
}

func (c *LeaderboardCache) generationKey(chapterID string) string {
	return "scores:leaderboard:" + chapterID + ":gen"
}

func (c *LeaderboardCache) pageKey(chapterID string, gen int64, limit int) string {
	return "scores:leaderboard:" + chapterID + ":" + strconv.FormatInt(gen, 10) + ":" + strconv.Itoa(limit)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyAttempts(in []domain.Attempt) []domain.Attempt {
	out := make([]domain.Attempt, len(in))
	copy(out, in)
	return out
}
