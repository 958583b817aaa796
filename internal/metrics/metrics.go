// Package metrics holds the process-wide prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LinkOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biolinks_link_operations_total",
		Help: "Link store mutations by operation and outcome.",
	}, []string{"op", "outcome"})

	PublicPageViewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biolinks_public_page_views_total",
		Help: "Public profile page requests by status.",
	}, []string{"status"})

	RedirectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "biolinks_redirect_duration_seconds",
		Help:    "Time from request receipt to click redirect response.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	})

	ClicksRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biolinks_clicks_recorded_total",
		Help: "Click rows successfully written to the database.",
	})

	ClicksRecordErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biolinks_clicks_record_errors_total",
		Help: "Click inserts that failed or were dropped because the queue was full.",
	})

	ClicksPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biolinks_clicks_purged_total",
		Help: "Click rows deleted by the retention job.",
	})

	UsersTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "biolinks_users_total",
		Help: "Registered users, refreshed on login and every few minutes.",
	})
)
