// Package storetest holds the behavioural contract every score store must meet.
package storetest

import (
	"context"
	"testing"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/domain"
)

// Factory returns an empty store. Cleanup is registered through t.
type Factory func(t *testing.T) app.AttemptRepository

// Run exercises a store against the contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsIdentity", func(t *testing.T) { testInsertAssignsIdentity(t, newStore(t)) })
	t.Run("EmptyStore", func(t *testing.T) { testEmptyStore(t, newStore(t)) })
	t.Run("CountBetter", func(t *testing.T) { testCountBetter(t, newStore(t)) })
	t.Run("TopOrdering", func(t *testing.T) { testTopOrdering(t, newStore(t)) })
	t.Run("ChapterIsolation", func(t *testing.T) { testChapterIsolation(t, newStore(t)) })
	t.Run("Aggregate", func(t *testing.T) { testAggregate(t, newStore(t)) })
}

func attempt(name, chapter string, score, total, timeUsed int) domain.Attempt {
	return domain.Attempt{
		Name:           name,
		Score:          score,
		TotalQuestions: total,
		TimeUsed:       timeUsed,
		Percentage:     domain.Percentage(score, total),
		ChapterID:      chapter,
	}
}

func mustInsert(t *testing.T, store app.AttemptRepository, a domain.Attempt) domain.Attempt {
	t.Helper()
	stored, err := store.Insert(context.Background(), a)
	if err != nil {
		t.Fatalf("insert %s: %v", a.Name, err)
	}
	return stored
}

func testInsertAssignsIdentity(t *testing.T, store app.AttemptRepository) {
	first := mustInsert(t, store, attempt("Ana", "c1", 8, 10, 120))
	second := mustInsert(t, store, attempt("Ana", "c1", 8, 10, 120))

	if first.ID == "" || second.ID == "" {
		t.Fatalf("expected ids to be assigned")
	}
	if first.ID == second.ID {
		t.Fatalf("duplicate payloads must create distinct rows, both got %s", first.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("expected createdAt to be assigned")
	}
	if first.Percentage != 80 || first.Name != "Ana" || first.ChapterID != "c1" ||
		first.Score != 8 || first.TotalQuestions != 10 || first.TimeUsed != 120 {
		t.Fatalf("stored fields do not round-trip: %+v", first)
	}

	top, err := store.Top(context.Background(), "c1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(top))
	}
	if top[0].ID != first.ID || !top[0].CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("read back %+v, inserted %+v", top[0], first)
	}
}

func testEmptyStore(t *testing.T, store app.AttemptRepository) {
	ctx := context.Background()
	top, err := store.Top(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 0 {
		t.Fatalf("expected no rows, got %d", len(top))
	}
	better, err := store.CountBetter(ctx, "c1", 50, 10)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if better != 0 {
		t.Fatalf("expected 0 better, got %d", better)
	}
	agg, err := store.Aggregate(ctx)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg != (domain.Aggregate{}) {
		t.Fatalf("expected zero aggregate, got %+v", agg)
	}
}

func testCountBetter(t *testing.T, store app.AttemptRepository) {
	ctx := context.Background()
	mustInsert(t, store, attempt("Ana", "c1", 8, 10, 120))
	mustInsert(t, store, attempt("Bo", "c1", 9, 10, 90))
	mustInsert(t, store, attempt("Cy", "c1", 8, 10, 60))

	cases := []struct {
		label      string
		percentage int
		timeUsed   int
		want       int
	}{
		{"ahead of everyone", 100, 500, 0},
		{"same as Bo", 90, 90, 0},
		{"behind Bo only", 85, 10, 1},
		{"tied with Cy", 80, 60, 1},
		{"between Cy and Ana", 80, 100, 2},
		{"tied with Ana", 80, 120, 2},
		{"slower than Ana", 80, 121, 3},
		{"last", 10, 0, 3},
	}
	for _, tc := range cases {
		got, err := store.CountBetter(ctx, "c1", tc.percentage, tc.timeUsed)
		if err != nil {
			t.Fatalf("%s: %v", tc.label, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %d better, got %d", tc.label, tc.want, got)
		}
	}
}

func testTopOrdering(t *testing.T, store app.AttemptRepository) {
	ctx := context.Background()
	mustInsert(t, store, attempt("Ana", "c1", 8, 10, 120))
	mustInsert(t, store, attempt("Bo", "c1", 9, 10, 90))
	mustInsert(t, store, attempt("Cy", "c1", 8, 10, 60))
	mustInsert(t, store, attempt("Twin", "c1", 8, 10, 120))
	mustInsert(t, store, attempt("Dee", "c1", 3, 10, 10))

	top, err := store.Top(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	want := []string{"Bo", "Cy", "Ana", "Twin", "Dee"}
	if len(top) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(top))
	}
	for i, name := range want {
		if top[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, top[i].Name)
		}
	}
	for i := 1; i < len(top); i++ {
		if domain.Better(top[i], top[i-1]) {
			t.Fatalf("row %d (%+v) ranks ahead of row %d (%+v)", i, top[i], i-1, top[i-1])
		}
	}

	head, err := store.Top(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("top 2: %v", err)
	}
	if len(head) != 2 || head[0].Name != "Bo" || head[1].Name != "Cy" {
		t.Fatalf("expected Bo then Cy, got %+v", head)
	}
}

func testChapterIsolation(t *testing.T, store app.AttemptRepository) {
	ctx := context.Background()
	mustInsert(t, store, attempt("Ana", "A", 5, 10, 100))
	mustInsert(t, store, attempt("Bo", "B", 10, 10, 1))
	mustInsert(t, store, attempt("Cy", "B", 9, 10, 1))

	better, err := store.CountBetter(ctx, "A", 50, 100)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if better != 0 {
		t.Fatalf("attempts in B must not count against A, got %d", better)
	}

	topA, err := store.Top(ctx, "A", 10)
	if err != nil {
		t.Fatalf("top A: %v", err)
	}
	if len(topA) != 1 || topA[0].Name != "Ana" {
		t.Fatalf("expected only Ana in A, got %+v", topA)
	}

	all, err := store.Top(ctx, "", 10)
	if err != nil {
		t.Fatalf("top all: %v", err)
	}
	if len(all) != 3 || all[0].Name != "Bo" {
		t.Fatalf("expected 3 rows led by Bo across chapters, got %+v", all)
	}
}

func testAggregate(t *testing.T, store app.AttemptRepository) {
	mustInsert(t, store, attempt("Ana", "c1", 8, 10, 120))
	mustInsert(t, store, attempt("Bo", "c1", 9, 10, 90))
	mustInsert(t, store, attempt("Cy", "c2", 8, 10, 60))

	agg, err := store.Aggregate(context.Background())
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	want := domain.Aggregate{Count: 3, PercentageSum: 250, TimeUsedSum: 270}
	if agg != want {
		t.Fatalf("expected %+v, got %+v", want, agg)
	}
}
