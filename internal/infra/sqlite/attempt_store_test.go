package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/infra/storetest"
)

func TestAttemptStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.AttemptRepository {
		return newTestStore(t, filepath.Join(t.TempDir(), "scores.db"))
	})
}

func TestAttemptStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")
	ctx := context.Background()

	store, err := NewAttemptStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stored, err := store.Insert(ctx, domain.Attempt{
		Name: "Ana", Score: 8, TotalQuestions: 10, TimeUsed: 120, Percentage: 80, ChapterID: "c1",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := newTestStore(t, path)
	top, err := reopened.Top(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 1 || top[0].ID != stored.ID {
		t.Fatalf("expected stored attempt after reopen, got %+v", top)
	}
	if !top[0].CreatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("createdAt changed across reopen: %v vs %v", top[0].CreatedAt, stored.CreatedAt)
	}
}

func newTestStore(t *testing.T, path string) *AttemptStore {
	t.Helper()
	store, err := NewAttemptStore(path)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
