package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// likeToggles считает успешные переключения лайков.
	// Labels: state (liked, unliked)
	likeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forum",
		Subsystem: "likes",
		Name:      "toggles_total",
		Help:      "Completed like toggles by resulting state",
	}, []string{"state"})

	// likeConflicts считает гонки оптимистичной блокировки.
	// Labels: outcome (retried, exhausted)
	likeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forum",
		Subsystem: "likes",
		Name:      "conflicts_total",
		Help:      "Like toggle version conflicts",
	}, []string{"outcome"})

	// authAttempts считает попытки входа.
	// Labels: outcome (success, user_not_found, invalid_credentials, error)
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forum",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Login attempts by outcome",
	}, []string{"outcome"})

	// storageTimeouts считает обращения к хранилищу, упершиеся в дедлайн.
	// Labels: op
	storageTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forum",
		Subsystem: "storage",
		Name:      "timeouts_total",
		Help:      "Storage calls that exceeded their deadline",
	}, []string{"op"})

	// httpDuration измеряет длительность HTTP-запросов.
	// Labels: method, route, status
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forum",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordLikeToggle фиксирует завершенное переключение.
func RecordLikeToggle(state string) {
	likeToggles.WithLabelValues(state).Inc()
}

// RecordLikeConflict фиксирует конфликт версий. exhausted - попытки кончились.
func RecordLikeConflict(exhausted bool) {
	outcome := "retried"
	if exhausted {
		outcome = "exhausted"
	}
	likeConflicts.WithLabelValues(outcome).Inc()
}

// RecordAuthAttempt фиксирует исход входа.
func RecordAuthAttempt(outcome string) {
	authAttempts.WithLabelValues(outcome).Inc()
}

// RecordStorageTimeout фиксирует таймаут операции хранилища.
func RecordStorageTimeout(op string) {
	storageTimeouts.WithLabelValues(op).Inc()
}

// ObserveHTTPRequest записывает длительность запроса.
func ObserveHTTPRequest(method, route, status string, durationSec float64) {
	httpDuration.WithLabelValues(method, route, status).Observe(durationSec)
}
