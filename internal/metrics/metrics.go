package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTicks counts ticks by result: completed, skipped, aborted.
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_scheduler_ticks_total",
		Help: "Scheduler ticks by result",
	}, []string{"result"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postflow_scheduler_tick_duration_seconds",
		Help:    "Scheduler tick duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// JobsDispatched counts dispatch outcomes: posted, retry, failed, skipped.
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_jobs_dispatched_total",
		Help: "Dispatched posting jobs by outcome",
	}, []string{"outcome"})

	PlatformPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_platform_publishes_total",
		Help: "Platform publish attempts by platform and result",
	}, []string{"platform", "result"})

	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postflow_platform_publish_duration_seconds",
		Help:    "Platform publish latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"platform"})

	// MaintenanceRuns counts periodic job runs by job name and result.
	MaintenanceRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_maintenance_runs_total",
		Help: "Maintenance job runs by job and result",
	}, []string{"job", "result"})

	AutomatedJobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postflow_automated_jobs_created_total",
		Help: "Automated posting jobs created by the daily content job",
	})

	QuotaDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_quota_denials_total",
		Help: "Generation requests refused by quota",
	}, []string{"resource"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postflow_notifications_total",
		Help: "Notifications by type and result",
	}, []string{"type", "result"})
)
