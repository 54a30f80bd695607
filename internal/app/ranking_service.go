package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/metrics"
)

// AttemptRepository is the score store contract: an append-only table of attempts.
type AttemptRepository interface {
	// Insert stores a new attempt, assigning ID and CreatedAt.
	Insert(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error)
	// CountBetter counts attempts in chapterID strictly ahead of (percentage, timeUsed).
	CountBetter(ctx context.Context, chapterID string, percentage, timeUsed int) (int, error)
	// Top returns up to limit attempts in leaderboard order. An empty chapterID
	// spans the whole table.
	Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error)
	// Aggregate returns count and sums over the whole table.
	Aggregate(ctx context.Context) (domain.Aggregate, error)
}

// LeaderboardCache serves leaderboard reads, possibly from a cache in front of the store.
type LeaderboardCache interface {
	Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error)
	Invalidate(ctx context.Context, chapterID string) error
}

// Limits bounds leaderboard queries.
type Limits struct {
	DefaultLimit int
	MaxLimit     int
}

func (l Limits) withDefaults() Limits {
	if l.DefaultLimit <= 0 {
		l.DefaultLimit = 10
	}
	if l.MaxLimit <= 0 {
		l.MaxLimit = 100
	}
	if l.DefaultLimit > l.MaxLimit {
		l.DefaultLimit = l.MaxLimit
	}
	return l
}

// RankingService accepts attempts, ranks them within their chapter and answers
// leaderboard and statistics queries. It holds no per-request state.
type RankingService struct {
	attempts     AttemptRepository
	leaderboards LeaderboardCache
	feed         *Feed
	limits       Limits
	log          *zap.Logger
	metrics      *metrics.Recorder
	now          func() time.Time
}

// NewRankingService wires the service. A nil cache reads straight from the
// store; a nil logger discards output; a nil recorder records nothing.
func NewRankingService(attempts AttemptRepository, leaderboards LeaderboardCache, limits Limits, logger *zap.Logger, rec *metrics.Recorder) *RankingService {
	if leaderboards == nil {
		leaderboards = directLeaderboard{attempts: attempts}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingService{
		attempts:     attempts,
		leaderboards: leaderboards,
		feed:         newFeed(rec),
		limits:       limits.withDefaults(),
		log:          logger.Named("ranking"),
		metrics:      rec,
		now:          time.Now,
	}
}

// Submit validates, persists and ranks one attempt.
//
// Better attempts are counted before the insert. The result equals counting
// after it (an attempt never beats itself) and a failed count leaves nothing
// written.
func (s *RankingService) Submit(ctx context.Context, sub domain.Submission) (domain.RankedAttempt, error) {
	if err := sub.Validate(); err != nil {
		var vErr *domain.ValidationError
		field := ""
		if errors.As(err, &vErr) {
			field = vErr.Field
		}
		s.metrics.SubmissionRejected(field)
		return domain.RankedAttempt{}, err
	}

	attempt := sub.NewAttempt()

	better, err := s.attempts.CountBetter(ctx, attempt.ChapterID, attempt.Percentage, attempt.TimeUsed)
	if err != nil {
		return domain.RankedAttempt{}, s.storageFailure("count_better", attempt.ChapterID, err)
	}

	stored, err := s.attempts.Insert(ctx, attempt)
	if err != nil {
		return domain.RankedAttempt{}, s.storageFailure("insert", attempt.ChapterID, err)
	}
	s.metrics.AttemptStored()

	s.afterWrite(ctx, stored.ChapterID)

	return domain.RankedAttempt{Attempt: stored, Rank: better + 1}, nil
}

// Leaderboard returns the head of the chapter's ordering. An empty chapterID
// means DefaultChapterID and limit 0 means the configured default.
func (s *RankingService) Leaderboard(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	limit, err := s.clampLimit(limit)
	if err != nil {
		return nil, err
	}
	s.metrics.LeaderboardLimit(limit)

	chapterID = domain.ResolveChapter(chapterID)
	entries, err := s.leaderboards.Top(ctx, chapterID, limit)
	if err != nil {
		return nil, s.storageFailure("top", chapterID, err)
	}
	if entries == nil {
		entries = []domain.Attempt{}
	}
	return entries, nil
}

// Stats aggregates every stored attempt. HighestScore is the head of the
// global ordering, across chapters.
func (s *RankingService) Stats(ctx context.Context) (domain.Stats, error) {
	var (
		agg  domain.Aggregate
		head []domain.Attempt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		agg, err = s.attempts.Aggregate(gctx)
		if err != nil {
			return s.storageFailure("aggregate", "", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		head, err = s.attempts.Top(gctx, "", 1)
		if err != nil {
			return s.storageFailure("top", "", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{
		TotalAttempts:     agg.Count,
		AveragePercentage: domain.RoundedMean(agg.PercentageSum, agg.Count),
		AverageTime:       domain.RoundedMean(agg.TimeUsedSum, agg.Count),
	}
	if len(head) > 0 {
		best := head[0]
		stats.HighestScore = &best
	}
	return stats, nil
}

// Subscribe opens a live leaderboard stream for a chapter. The first value is
// the current snapshot. The caller must invoke cancel to release it.
func (s *RankingService) Subscribe(ctx context.Context, chapterID string, limit int) (<-chan domain.Leaderboard, func(), error) {
	limit, err := s.clampLimit(limit)
	if err != nil {
		return nil, nil, err
	}
	chapterID = domain.ResolveChapter(chapterID)
	entries, err := s.Leaderboard(ctx, chapterID, limit)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(chapterID, limit, domain.Leaderboard{
		ChapterID: chapterID,
		Entries:   entries,
		UpdatedAt: s.now().UTC(),
	})
	return ch, cancel, nil
}

// afterWrite drops stale cached leaderboards and pushes a fresh one to live
// subscribers. Both are best-effort: the attempt is already stored.
func (s *RankingService) afterWrite(ctx context.Context, chapterID string) {
	if err := s.leaderboards.Invalidate(ctx, chapterID); err != nil {
		s.log.Warn("leaderboard cache invalidation failed",
			zap.String("chapter_id", chapterID), zap.Error(err))
	}

	limit := s.feed.maxLimit(chapterID)
	if limit == 0 {
		return
	}
	entries, err := s.leaderboards.Top(ctx, chapterID, limit)
	if err != nil {
		s.log.Warn("live leaderboard refresh failed",
			zap.String("chapter_id", chapterID), zap.Error(err))
		return
	}
	s.feed.publish(chapterID, entries, s.now().UTC())
}

func (s *RankingService) clampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	case limit == 0:
		return s.limits.DefaultLimit, nil
	case limit > s.limits.MaxLimit:
		return s.limits.MaxLimit, nil
	}
	return limit, nil
}

func (s *RankingService) storageFailure(op, chapterID string, err error) error {
	s.metrics.StorageError(op)
	s.log.Error("score store failure",
		zap.String("op", op), zap.String("chapter_id", chapterID), zap.Error(err))
	var sErr *domain.StorageError
	if errors.As(err, &sErr) {
		return err
	}
	return &domain.StorageError{Op: op, Err: err}
}

// directLeaderboard reads leaderboards straight from the store.
type directLeaderboard struct {
	attempts AttemptRepository
}

func (d directLeaderboard) Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	return d.attempts.Top(ctx, chapterID, limit)
}

func (directLeaderboard) Invalidate(context.Context, string) error { return nil }
