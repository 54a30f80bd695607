package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"quiz-score-service/internal/domain"
)

// AttemptStore persists attempts in a SQLite file. rowid keeps ties in
// insertion order.
type AttemptStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewAttemptStore(path string) (*AttemptStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "scores.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// a single writer avoids SQLITE_BUSY under concurrent submissions
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &AttemptStore{db: db, clock: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *AttemptStore) Close() error {
	return s.db.Close()
}

func (s *AttemptStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			score INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			time_used INTEGER NOT NULL,
			percentage INTEGER NOT NULL,
			chapter_id TEXT NOT NULL DEFAULT 'overall',
			created_at_unix_nano INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_chapter_order ON attempts(chapter_id, percentage DESC, time_used ASC);`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_order ON attempts(percentage DESC, time_used ASC);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *AttemptStore) Insert(ctx context.Context, attempt domain.Attempt) (domain.Attempt, error) {
	attempt.ID = uuid.NewString()
	attempt.CreatedAt = s.clock().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, name, score, total_questions, time_used, percentage, chapter_id, created_at_unix_nano)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.Name,
		attempt.Score,
		attempt.TotalQuestions,
		attempt.TimeUsed,
		attempt.Percentage,
		attempt.ChapterID,
		attempt.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return attempt, nil
}

func (s *AttemptStore) CountBetter(ctx context.Context, chapterID string, percentage, timeUsed int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts
		 WHERE chapter_id = ? AND (percentage > ? OR (percentage = ? AND time_used < ?))`,
		chapterID, percentage, percentage, timeUsed,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count better attempts: %w", err)
	}
	return count, nil
}

func (s *AttemptStore) Top(ctx context.Context, chapterID string, limit int) ([]domain.Attempt, error) {
	query := `SELECT id, name, score, total_questions, time_used, percentage, chapter_id, created_at_unix_nano FROM attempts`
	args := make([]any, 0, 2)
	if chapterID != "" {
		query += ` WHERE chapter_id = ?`
		args = append(args, chapterID)
	}
	query += ` ORDER BY percentage DESC, time_used ASC, rowid ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	attempts := make([]domain.Attempt, 0, limit)
	for rows.Next() {
		var (
			a         domain.Attempt
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Score, &a.TotalQuestions, &a.TimeUsed, &a.Percentage, &a.ChapterID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return attempts, nil
}

func (s *AttemptStore) Aggregate(ctx context.Context) (domain.Aggregate, error) {
	var agg domain.Aggregate
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(percentage), 0), COALESCE(SUM(time_used), 0) FROM attempts`,
	).Scan(&agg.Count, &agg.PercentageSum, &agg.TimeUsedSum)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("aggregate attempts: %w", err)
	}
	return agg, nil
}
