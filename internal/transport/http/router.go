package http

import (
	"net/http"

	"go.uber.org/zap"

	"quiz-score-service/internal/app"
	"quiz-score-service/internal/metrics"
)

// RouterOptions carries the cross-cutting pieces the router wires in.
type RouterOptions struct {
	Logger         *zap.Logger
	Metrics        *metrics.Recorder
	AllowedOrigins []string
}

// NewRouter registers every endpoint. Routes are also served under /api for
// clients that address the API by that prefix.
func NewRouter(service *app.RankingService, opts RouterOptions) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	scores := NewScoreHandler(service, log)
	live := NewLiveHandler(service, originChecker(opts.AllowedOrigins), log)
	rec := opts.Metrics

	mux := http.NewServeMux()
	mux.HandleFunc("POST /scores", instrument(rec, "POST /scores", scores.Submit))
	mux.HandleFunc("GET /scores", instrument(rec, "GET /scores", scores.List))
	mux.HandleFunc("GET /scores/stats", instrument(rec, "GET /scores/stats", scores.Stats))
	mux.HandleFunc("GET /scores/live", instrument(rec, "GET /scores/live", live.ServeWS))
	mux.HandleFunc("GET /health", instrument(rec, "GET /health", scores.Health))
	mux.Handle("GET /metrics", rec.Handler())
	mux.Handle("/api/", http.StripPrefix("/api", mux))

	return accessLog(log, cors(opts.AllowedOrigins, mux))
}
