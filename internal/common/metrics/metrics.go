// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)

var (
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_transitions_total",
			Help: "Committed application transitions",
		},
		[]string{"category", "action", "to"},
	)

	LifecycleRejectedCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_rejected_commands_total",
			Help: "Lifecycle commands refused with a domain error",
		},
		[]string{"action", "error_code"},
	)

	SideEffects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_side_effects_total",
			Help: "Side effect executions by kind and result",
		},
		[]string{"kind", "result"},
	)

	CapacityEnrolled = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admissions_capacity_enrolled",
			Help: "Enrolled count per offering as last observed by the ledger",
		},
		[]string{"offering"},
	)

	CredentialKeyCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admissions_credential_key_collisions_total",
			Help: "Generated access keys rejected by the uniqueness index",
		},
	)

	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admissions_notifications_delivered_total",
			Help: "Notification deliveries by kind and result",
		},
		[]string{"kind", "result"},
	)

	NotificationsDeadLettered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admissions_notifications_dead_lettered_total",
			Help: "Notifications moved to the dead letter list after exhausting attempts",
		},
	)
)
