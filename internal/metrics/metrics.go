// Package metrics exposes Prometheus instrumentation for the score service.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quiz_scores"

// Recorder owns a private registry so tests can create independent instances.
type Recorder struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	attemptsStored   prometheus.Counter
	rejected         *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	liveSubscribers  prometheus.Gauge
	leaderboardLimit prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		attemptsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_stored_total",
			Help:      "Attempts persisted.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_rejected_total",
			Help:      "Submissions rejected by validation, by field.",
		}, []string{"field"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Score store failures by operation.",
		}, []string{"op"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_lookups_total",
			Help:      "Leaderboard cache lookups by result.",
		}, []string{"result"}),
		liveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_subscribers",
			Help:      "Open live leaderboard subscriptions.",
		}),
		leaderboardLimit: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "leaderboard_limit",
			Help:      "Requested leaderboard sizes after clamping.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
	}
	reg.MustRegister(
		r.httpRequests,
		r.httpDuration,
		r.attemptsStored,
		r.rejected,
		r.storageErrors,
		r.cacheLookups,
		r.liveSubscribers,
		r.leaderboardLimit,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// AttemptStored counts a persisted attempt. Chapter ids are client input and
// stay out of labels.
func (r *Recorder) AttemptStored() {
	if r == nil {
		return
	}
	r.attemptsStored.Inc()
}

// SubmissionRejected counts a validation failure. An empty field means one
// or more required fields were missing.
func (r *Recorder) SubmissionRejected(field string) {
	if r == nil {
		return
	}
	if field == "" {
		field = "missing"
	}
	r.rejected.WithLabelValues(field).Inc()
}

func (r *Recorder) StorageError(op string) {
	if r == nil {
		return
	}
	r.storageErrors.WithLabelValues(op).Inc()
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) LiveSubscribers(delta int) {
	if r == nil {
		return
	}
	r.liveSubscribers.Add(float64(delta))
}

func (r *Recorder) LeaderboardLimit(limit int) {
	if r == nil {
		return
	}
	r.leaderboardLimit.Observe(float64(limit))
}
