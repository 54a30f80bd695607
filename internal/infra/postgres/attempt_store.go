package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-score-service/internal/domain"
)

// The ORDER BY clauses mirror domain.Better; seq keeps ties in insertion order.
const (
	insertAttemptSQL = `INSERT INTO attempts (id, name, score, total_questions, time_used, percentage, chapter_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`

	countBetterSQL = `SELECT count(*) FROM attempts
WHERE chapter_id = $1 AND (percentage > $2 OR (percentage = $2 AND time_used < $3))`

	selectColumns = `SELECT id, name, score, total_questions, time_used, percentage, chapter_id, created_at FROM attempts`

	topByChapterSQL = selectColumns + `
WHERE chapter_id = $1
ORDER BY percentage DESC, time_used ASC, seq ASC
LIMIT $2`

	topAllSQL = selectColumns + `
ORDER BY percentage DESC, time_used ASC, seq ASC
LIMIT $1`

	aggregateSQL = `SELECT count(*), COALESCE(SUM(percentage), 0), COALESCE(SUM(time_used), 0) FROM attempts`
)

// AttemptStore persists attempts in Postgres.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

func (s *AttemptStore) Insert(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	attempt.ID = uuid.NewString()
	var createdAt time.Time
	err := s.pool.QueryRow(ctx, insertAttemptSQL,
		attempt.ID,
		attempt.Name,
		attempt.Score,
		attempt.TotalQuestions,
		attempt.TimeUsed,
		attempt.Percentage,
		attempt.ChapterID,
	).Scan(&createdAt)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	attempt.CreatedAt = createdAt.UTC()
	return attempt, nil
}

func (s *AttemptStore) CountBetter(ctx context.Context, chapterID string, percentage, timeUsed int) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, countBetterSQL, chapterID, percentage, timeUsed).Scan(&count); err != nil {
		return 0, fmt.Errorf("count better attempts: %w", err)
	}
	return count, nil
}

func (s *AttemptStore) Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if chapterID == "" {
		rows, err = s.pool.Query(ctx, topAllSQL, limit)
	} else {
		rows, err = s.pool.Query(ctx, topByChapterSQL, chapterID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.Attempt, 0, limit)
	for rows.Next() {
		var a domain.Attempt
		if err := rows.Scan(&a.ID, &a.Name, &a.Score, &a.TotalQuestions, &a.TimeUsed, &a.Percentage, &a.ChapterID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.CreatedAt = a.CreatedAt.UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return attempts, nil
}

func (s *AttemptStore) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	var agg domain.Aggregate
	if err := s.pool.QueryRow(ctx, aggregateSQL).Scan(&agg.Count, &agg.PercentageSum, &agg.TimeUsedSum); err != nil {
		return domain.Aggregate{}, fmt.Errorf("aggregate attempts: %w", err)
	}
	return agg, nil
}
