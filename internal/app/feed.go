package app

import (
	"sync"
	"time"

	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/metrics"
)

// Feed fans leaderboard snapshots out to live subscribers, per chapter.
type Feed struct {
	mu       sync.Mutex
	chapters map[string]map[*subscriber]struct{}
	metrics  *metrics.Recorder
}

type subscriber struct {
	ch    chan domain.Leaderboard
	limit int
}

func newFeed(rec *metrics.Recorder) *Feed {
	return &Feed{
		chapters: make(map[string]map[*subscriber]struct{}),
		metrics:  rec,
	}
}

func (f *Feed) subscribe(chapterID string, limit int, initial domain.Leaderboard) (<-chan domain.Leaderboard, func()) {
	sub := &subscriber{ch: make(chan domain.Leaderboard, 1), limit: limit}
	sub.ch <- trim(initial, limit)

	f.mu.Lock()
	subs, ok := f.chapters[chapterID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		f.chapters[chapterID] = subs
	}
	subs[sub] = struct{}{}
	f.mu.Unlock()
	f.metrics.LiveSubscribers(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if subs, ok := f.chapters[chapterID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(f.chapters, chapterID)
				}
			}
			close(sub.ch)
			f.mu.Unlock()
			f.metrics.LiveSubscribers(-1)
		})
	}
	return sub.ch, cancel
}

// maxLimit returns the largest limit requested for chapterID, or 0 when nobody listens.
func (f *Feed) maxLimit(chapterID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	largest := 0
	for sub := range f.chapters[chapterID] {
		if sub.limit > largest {
			largest = sub.limit
		}
	}
	return largest
}

// publish delivers the latest snapshot. A subscriber that has not consumed
// the previous one loses it; only the newest snapshot matters.
func (f *Feed) publish(chapterID string, entries []domain.Attempt, at time.Time) {
	lb := domain.Leaderboard{ChapterID: chapterID, Entries: entries, UpdatedAt: at}

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.chapters[chapterID] {
		snapshot := trim(lb, sub.limit)
		select {
		case sub.ch <- snapshot:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- snapshot
		}
	}
}

func trim(lb domain.Leaderboard, limit int) domain.Leaderboard {
	if limit > 0 && len(lb.Entries) > limit {
		lb.Entries = lb.Entries[:limit]
	}
	if lb.Entries == nil {
		lb.Entries = []domain.Attempt{}
	}
	return lb
}
