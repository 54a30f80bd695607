package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-score-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts []domain.Attempt
	clock    func() time.Time
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{clock: time.Now}
}

// NewAttemptStoreWithClock is for deterministic timestamps in tests.
func NewAttemptStoreWithClock(now func() time.Time) *AttemptStore {
	return &AttemptStore{clock: now}
}

func (s *AttemptStore) Insert(_ context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = s.clock().UTC()

	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.mu.Unlock()
	return attempt, nil
}

func (s *AttemptStore) CountBetter(_ context.Context, chapterID string, percentage, timeUsed int) (int, error) {
	probe := domain.Attempt{Percentage: percentage, TimeUsed: timeUsed}

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.attempts {
		if a.ChapterID == chapterID && domain.Better(a, probe) {
			count++
		}
	}
	return count, nil
}

func (s *AttemptStore) Top(_ context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	s.mu.RLock()
	matched := make([]domain.Attempt, 0, len(s.attempts))
	for _, a := range s.attempts {
		if chapterID == "" || a.ChapterID == chapterID {
			matched = append(matched, a)
		}
	}
	s.mu.RUnlock()

	// insertion order doubles as createdAt order for ties
	domain.SortAttempts(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *AttemptStore) Aggregate(_ context.Context) (domain.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg := domain.Aggregate{Count: len(s.attempts)}
	for _, a := range s.attempts {
		agg.PercentageSum += int64(a.Percentage)
		agg.TimeUsedSum += int64(a.TimeUsed)
	}
	return agg, nil
}

// Len reports the number of stored attempts.
func (s *AttemptStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attempts)
}
