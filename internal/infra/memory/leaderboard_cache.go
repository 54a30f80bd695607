package memory

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/metrics"
)

// LeaderboardSource is the backing store a cache reads through to.
type LeaderboardSource interface {
	Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error)
}

// defaultMaxPages caps cached pages. Chapter ids come from clients, so the
// key space is unbounded.
const defaultMaxPages = 1024

// LeaderboardCache caches leaderboard pages in process with TTL.
// Invalidate bumps the chapter generation so every cached page for it misses.
type LeaderboardCache struct {
	source   LeaderboardSource
	ttl      time.Duration
	maxPages int
	clock    func() time.Time
	sf       singleflight.Group
	metrics  *metrics.Recorder

	mu          sync.Mutex
	rnd         *rand.Rand
	generations map[string]uint64
	cache       map[string]cachedPage
}

type cachedPage struct {
	entries   []domain.Attempt
	expiresAt time.Time
}

func NewLeaderboardCache(source LeaderboardSource, ttl time.Duration, rec *metrics.Recorder) *LeaderboardCache {
	return &LeaderboardCache{
		source:      source,
		ttl:         ttl,
		maxPages:    defaultMaxPages,
		clock:       time.Now,
		metrics:     rec,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		generations: make(map[string]uint64),
		cache:       make(map[string]cachedPage),
	}
}

func (c *LeaderboardCache) Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	if c.ttl <= 0 {
		return c.source.Top(ctx, chapterID, limit)
	}

	key := c.key(chapterID, limit)
	if entries, hit := c.get(key); hit {
		c.metrics.CacheLookup(true)
		return copyAttempts(entries), nil
	}
	c.metrics.CacheLookup(false)

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		if entries, hit := c.get(key); hit {
			return entries, nil
		}
		entries, err := c.source.Top(ctx, chapterID, limit)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.storeLocked(key, entries)
		c.mu.Unlock()
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return copyAttempts(result.([]domain.Attempt)), nil
}

// Invalidate drops every cached page of chapterID.
func (c *LeaderboardCache) Invalidate(_ context.Context, chapterID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[chapterID]++
	prefix := chapterID + "|"
	for key := range c.cache {
		if strings.HasPrefix(key, prefix) {
			delete(c.cache, key)
		}
	}
	return nil
}

func (c *LeaderboardCache) key(chapterID string, limit int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chapterID + "|" + strconv.FormatUint(c.generations[chapterID], 10) + "|" + strconv.Itoa(limit)
}

func (c *LeaderboardCache) get(key string) ([]domain.Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	page, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if !page.expiresAt.After(c.clock()) {
		delete(c.cache, key)
		return nil, false
	}
	return page.entries, true
}

// storeLocked drops expired pages, evicts the page closest to expiry when
// full, then stores the new page.
func (c *LeaderboardCache) storeLocked(key string, entries []domain.Attempt) {
	now := c.clock()
	for k, page := range c.cache {
		if !page.expiresAt.After(now) {
			delete(c.cache, k)
		}
	}
	if len(c.cache) >= c.maxPages {
		var (
			victim  string
			soonest time.Time
		)
		for k, page := range c.cache {
			if victim == "" || page.expiresAt.Before(soonest) {
				victim, soonest = k, page.expiresAt
			}
		}
		delete(c.cache, victim)
	}
	c.cache[key] = cachedPage{
		entries:   entries,
		expiresAt: now.Add(c.ttlWithJitterLocked()),
	}
}

func (c *LeaderboardCache) ttlWithJitterLocked() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func copyAttempts(in []domain.Attempt) []domain.Attempt {
	out := make([]domain.Attempt, len(in))
	copy(out, in)
	return out
}
