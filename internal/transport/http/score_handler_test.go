package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/domain"
	"quiz-score-service/internal/infra/memory"
	"quiz-score-service/internal/metrics"
)

func TestSubmitAndLeaderboardScenario(t *testing.T) {
	router, _ := newTestRouter(t)

	ana := postScore(t, router, `{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":120,"chapterId":"c1"}`)
	if ana.Percentage != 80 || ana.Rank != 1 {
		t.Fatalf("expected Ana 80%% rank 1, got %+v", ana)
	}
	if ana.ID == "" || ana.CreatedAt.IsZero() || ana.ChapterID != "c1" {
		t.Fatalf("expected stored fields on response, got %+v", ana)
	}

	bo := postScore(t, router, `{"name":"Bo","score":9,"totalQuestions":10,"timeUsed":90,"chapterId":"c1"}`)
	if bo.Percentage != 90 || bo.Rank != 1 {
		t.Fatalf("expected Bo 90%% rank 1, got %+v", bo)
	}

	cy := postScore(t, router, `{"name":"Cy","score":8,"totalQuestions":10,"timeUsed":60,"chapterId":"c1"}`)
	if cy.Percentage != 80 || cy.Rank != 2 {
		t.Fatalf("expected Cy 80%% rank 2, got %+v", cy)
	}

	rr := do(router, http.MethodGet, "/scores?chapterId=c1&limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var board []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(board) != 2 || board[0]["name"] != "Bo" || board[1]["name"] != "Cy" {
		t.Fatalf("expected Bo then Cy, got %v", board)
	}
	if _, ok := board[0]["rank"]; ok {
		t.Fatalf("leaderboard entries must not carry rank")
	}

	// Ana's rank re-derived from the leaderboard is now 3 (Bo, Cy ahead).
	full := getBoard(t, router, "/scores?chapterId=c1")
	if len(full) != 3 || full[2].Name != "Ana" {
		t.Fatalf("expected Ana last, got %+v", full)
	}
}

func TestSubmitDefaultsChapterToOverall(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := postScore(t, router, `{"name":"Ana","score":5,"totalQuestions":10,"timeUsed":30}`)
	if resp.ChapterID != domain.DefaultChapterID {
		t.Fatalf("expected chapter %q, got %q", domain.DefaultChapterID, resp.ChapterID)
	}
	board := getBoard(t, router, "/scores")
	if len(board) != 1 || board[0].ID != resp.ID {
		t.Fatalf("expected default leaderboard to list the overall attempt, got %+v", board)
	}
}

func TestSubmitAcceptsZeroScoreAndTime(t *testing.T) {
	router, _ := newTestRouter(t)
	resp := postScore(t, router, `{"name":"Zero","score":0,"totalQuestions":10,"timeUsed":0}`)
	if resp.Percentage != 0 || resp.Rank != 1 {
		t.Fatalf("expected 0%% rank 1, got %+v", resp)
	}
}

func TestSubmitMissingFieldsRejected(t *testing.T) {
	router, store := newTestRouter(t)

	bodies := []string{
		`{"score":8,"totalQuestions":10,"timeUsed":120}`,
		`{"name":"","score":8,"totalQuestions":10,"timeUsed":120}`,
		`{"name":"Ana","totalQuestions":10,"timeUsed":120}`,
		`{"name":"Ana","score":8,"timeUsed":120}`,
		`{"name":"Ana","score":8,"totalQuestions":0,"timeUsed":120}`,
		`{"name":"Ana","score":8,"totalQuestions":10}`,
		`{"name":null,"score":8,"totalQuestions":10,"timeUsed":120}`,
	}
	for _, body := range bodies {
		rr := do(router, http.MethodPost, "/scores", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
		if got := decodeError(t, rr); got != "Missing required fields" {
			t.Fatalf("%s: unexpected error %q", body, got)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("rejected submissions must not write, store has %d rows", store.Len())
	}
}

func TestSubmitMalformedBodyRejected(t *testing.T) {
	router, store := newTestRouter(t)

	for _, body := range []string{
		`not json`,
		`{"name":"Ana","score":"eight","totalQuestions":10,"timeUsed":120}`,
		`{"name":"Ana","score":8.5,"totalQuestions":10,"timeUsed":120}`,
	} {
		rr := do(router, http.MethodPost, "/scores", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
	}

	rr := do(router, http.MethodPost, "/scores", `{"name":"Ana","score":11,"totalQuestions":10,"timeUsed":120}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, rr), "score") {
		t.Fatalf("expected score range error, got %d %s", rr.Code, rr.Body.String())
	}
	for field, body := range map[string]string{
		"totalQuestions": `{"name":"Ana","score":8,"totalQuestions":3000000000,"timeUsed":120}`,
		"score":          `{"name":"Ana","score":50000000000000000,"totalQuestions":2147483647,"timeUsed":1}`,
		"timeUsed":       `{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":2147483648}`,
	} {
		rr := do(router, http.MethodPost, "/scores", body)
		if rr.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, rr), field) {
			t.Fatalf("%s: expected 400 naming the field, got %d %s", field, rr.Code, rr.Body.String())
		}
	}
	if store.Len() != 0 {
		t.Fatalf("malformed submissions must not write, store has %d rows", store.Len())
	}
}

func TestSubmitStorageFailure(t *testing.T) {
	service := app.NewRankingService(failingRepo{}, nil, app.Limits{}, nil, nil)
	router := NewRouter(service, RouterOptions{})

	rr := do(router, http.MethodPost, "/scores", `{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":120}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if got := decodeError(t, rr); got != "Failed to save score" {
		t.Fatalf("unexpected error %q", got)
	}

	rr = do(router, http.MethodGet, "/scores", "")
	if rr.Code != http.StatusInternalServerError || decodeError(t, rr) != "Failed to fetch scores" {
		t.Fatalf("expected fetch failure, got %d %s", rr.Code, rr.Body.String())
	}

	rr = do(router, http.MethodGet, "/scores/stats", "")
	if rr.Code != http.StatusInternalServerError || decodeError(t, rr) != "Failed to fetch statistics" {
		t.Fatalf("expected stats failure, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestListRejectsBadLimit(t *testing.T) {
	router, _ := newTestRouter(t)
	for _, q := range []string{"limit=0", "limit=-3", "limit=ten"} {
		rr := do(router, http.MethodGet, "/scores?"+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestListDefaultLimitIsTen(t *testing.T) {
	router, _ := newTestRouter(t)
	for i := 0; i < 12; i++ {
		postScore(t, router, `{"name":"P","score":5,"totalQuestions":10,"timeUsed":10,"chapterId":"c1"}`)
	}
	if got := len(getBoard(t, router, "/scores?chapterId=c1")); got != 10 {
		t.Fatalf("expected 10 entries by default, got %d", got)
	}
	if got := len(getBoard(t, router, "/scores?chapterId=c1&limit=11")); got != 11 {
		t.Fatalf("expected 11 entries, got %d", got)
	}
}

func TestListEmptyChapterReturnsArray(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := do(router, http.MethodGet, "/scores?chapterId=nobody", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestStatsScenario(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(router, http.MethodGet, "/scores/stats", "")
	var empty map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if empty["totalAttempts"] != float64(0) || empty["highestScore"] != nil {
		t.Fatalf("expected empty stats, got %v", empty)
	}

	postScore(t, router, `{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":120,"chapterId":"c1"}`)
	postScore(t, router, `{"name":"Bo","score":9,"totalQuestions":10,"timeUsed":90,"chapterId":"c1"}`)
	postScore(t, router, `{"name":"Cy","score":8,"totalQuestions":10,"timeUsed":60,"chapterId":"c2"}`)

	rr = do(router, http.MethodGet, "/scores/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats domain.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalAttempts != 3 || stats.AveragePercentage != 83 || stats.AverageTime != 90 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.HighestScore == nil || stats.HighestScore.Name != "Bo" {
		t.Fatalf("expected Bo as highest score, got %+v", stats.HighestScore)
	}
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := do(router, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}

func TestAPIPrefixAlias(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := do(router, http.MethodPost, "/api/scores", `{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":120}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 via /api prefix, got %d", rr.Code)
	}
	if got := len(getBoard(t, router, "/api/scores")); got != 1 {
		t.Fatalf("expected 1 entry via /api prefix, got %d", got)
	}
	if rr := do(router, http.MethodGet, "/api/scores/stats", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected stats via /api prefix, got %d", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)
	if rr := do(router, http.MethodDelete, "/scores", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for DELETE, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	service := app.NewRankingService(memory.NewAttemptStore(), nil, app.Limits{}, nil, nil)
	router := NewRouter(service, RouterOptions{AllowedOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/scores", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/scores", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin must not be allowed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.New()
	service := app.NewRankingService(memory.NewAttemptStore(), nil, app.Limits{}, nil, rec)
	router := NewRouter(service, RouterOptions{Metrics: rec})

	for i := 0; i < 50; i++ {
		body := fmt.Sprintf(`{"name":"Ana","score":8,"totalQuestions":10,"timeUsed":120,"chapterId":"chapter-%d"}`, i)
		if rr := do(router, http.MethodPost, "/scores", body); rr.Code != http.StatusCreated {
			t.Fatalf("submit %d: expected 201, got %d", i, rr.Code)
		}
	}
	rr := do(router, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "quiz_scores_attempts_stored_total 50") {
		t.Fatalf("expected one stored attempt series counting 50, got:\n%s", body)
	}
	if strings.Contains(body, "chapter-") {
		t.Fatalf("client chapter ids must not become metric labels")
	}
	if !strings.Contains(body, `route="POST /scores"`) {
		t.Fatalf("expected route label for submit")
	}
}

func newTestRouter(t *testing.T) (http.Handler, *memory.AttemptStore) {
	t.Helper()
	store := memory.NewAttemptStore()
	service := app.NewRankingService(store, memory.NewLeaderboardCache(store, 0, nil), app.Limits{DefaultLimit: 10, MaxLimit: 100}, nil, nil)
	return NewRouter(service, RouterOptions{AllowedOrigins: []string{"*"}}), store
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func postScore(t *testing.T, h http.Handler, body string) domain.RankedAttempt {
	t.Helper()
	rr := do(h, http.MethodPost, "/scores", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit %s: expected 201, got %d %s", body, rr.Code, rr.Body.String())
	}
	var resp domain.RankedAttempt
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return resp
}

func getBoard(t *testing.T, h http.Handler, target string) []domain.Attempt {
	t.Helper()
	rr := do(h, http.MethodGet, target, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", target, rr.Code)
	}
	var board []domain.Attempt
	if err := json.Unmarshal(rr.Body.Bytes(), &board); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	return board
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error
}

type failingRepo struct{}

var errDown = errors.New("database unreachable")

func (failingRepo) Insert(context.Context, domain.Attempt) (domain.Attempt, error) {
	return domain.Attempt{}, errDown
}

func (failingRepo) CountBetter(context.Context, string, int, int) (int, error) {
	return 0, errDown
}

func (failingRepo) Top(context.Context, string, int) ([]domain.Attempt, error) {
	return nil, errDown
}

func (failingRepo) Aggregate(context.Context) (domain.Aggregate, error) {
	return domain.Aggregate{}, errDown
}
