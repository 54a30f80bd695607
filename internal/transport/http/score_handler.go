package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/domain"
)

const maxBodyBytes = 1 << 20

// ScoreHandler serves the score submission, leaderboard and statistics endpoints.
type ScoreHandler struct {
	service *app.RankingService
	log     *zap.Logger
}

func NewScoreHandler(service *app.RankingService, logger *zap.Logger) *ScoreHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreHandler{service: service, log: logger.Named("http")}
}

type submitRequest struct {
	Name           *string `json:"name"`
	Score          *int    `json:"score"`
	TotalQuestions *int    `json:"totalQuestions"`
	TimeUsed       *int    `json:"timeUsed"`
	ChapterID      string  `json:"chapterId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Submit handles POST /scores.
func (h *ScoreHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	ranked, err := h.service.Submit(r.Context(), domain.Submission{
		Name:           req.Name,
		Score:          req.Score,
		TotalQuestions: req.TotalQuestions,
		TimeUsed:       req.TimeUsed,
		ChapterID:      req.ChapterID,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to save score")
		return
	}
	writeJSON(w, http.StatusCreated, ranked)
}

// List handles GET /scores?limit=&chapterId=.
func (h *ScoreHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	entries, err := h.service.Leaderboard(r.Context(), r.URL.Query().Get("chapterId"), limit)
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch scores")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Stats handles GET /scores/stats.
func (h *ScoreHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to fetch statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /health. It carries no business semantics.
func (h *ScoreHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Message: "Quiz score service is running"})
}

func (h *ScoreHandler) writeServiceError(w http.ResponseWriter, err error, failure string) {
	if errors.Is(err, domain.ErrValidation) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	// storage details stay in the logs
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: failure})
}

// parseLimit returns 0 when the parameter is absent so the service default applies.
func parseLimit(r *http.Request) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get("limit"))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
