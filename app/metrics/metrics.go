// Package metrics exposes the service's Prometheus collectors at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh scheduler
	RefreshRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_refresh_runs_total",
			Help: "Refresh and auto-enrich runs by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: queued, budget_exhausted, idle
	)

	JobsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_jobs_queued_total",
			Help: "Enrichment jobs inserted into the queue",
		},
		[]string{"job_type"},
	)

	QueuedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_jobs_queued_cost_usd_total",
			Help: "Estimated cost of queued enrichment jobs in USD",
		},
		[]string{"job_type"},
	)

	WeeklySpendUSD = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pit_weekly_spend_usd",
			Help: "Cost ledger spend since the start of the current week",
		},
	)

	// Guest directory
	GuestMerges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_guest_merges_total",
			Help: "Guest merge attempts by outcome",
		},
		[]string{"outcome"}, // merged, dry_run, failed
	)

	// Notifications
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_notifications_created_total",
			Help: "Notifications created by the processor",
		},
		[]string{"type"},
	)

	NotificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_notification_deliveries_total",
			Help: "Notification delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Rate limiting
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_rate_limit_decisions_total",
			Help: "Rate limit checks by endpoint and decision",
		},
		[]string{"endpoint", "decision"}, // allowed, rejected, bypass
	)

	// Background tasks
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pit_task_duration_seconds",
			Help:    "Duration of background tasks",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 60, 300},
		},
		[]string{"type", "status"},
	)

	// HTTP
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pit_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
)

func RecordRefreshRun(kind, outcome string) {
	RefreshRuns.WithLabelValues(kind, outcome).Inc()
}

func RecordJobQueued(jobType string, cost float64) {
	JobsQueued.WithLabelValues(jobType).Inc()
	QueuedCostUSD.WithLabelValues(jobType).Add(cost)
}

func RecordMerge(outcome string) {
	GuestMerges.WithLabelValues(outcome).Inc()
}

func RecordDelivery(channel string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	NotificationDeliveries.WithLabelValues(channel, outcome).Inc()
}

func RecordTask(taskType string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	TaskDuration.WithLabelValues(taskType, status).Observe(duration.Seconds())
}
