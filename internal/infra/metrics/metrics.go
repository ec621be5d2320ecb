// Package metrics provides Prometheus metrics for the Life System:
// quest generation and completion, progression, sweeps, HTTP and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lifesystem"

// ─── Quests ─────────────────────────────────────────────────────────────────

// QuestsGenerated tracks assigned quests by type and origin (catalog|fallback).
var QuestsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_generated_total",
	Help:      "Total quests assigned to adventurers.",
}, []string{"type", "origin"})

// QuestsCompleted tracks completed quests by type.
var QuestsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quests_completed_total",
	Help:      "Total quests completed.",
}, []string{"type"})

// QuestCompletionRejected tracks rejected completions by reason.
var QuestCompletionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "quest_completion_rejected_total",
	Help:      "Completion attempts rejected (not_found, already_completed, expired, persistence).",
}, []string{"reason"})

// ─── Progression ────────────────────────────────────────────────────────────

// XPAwarded tracks total XP granted.
var XPAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "xp_awarded_total",
	Help:      "Total experience points awarded.",
})

// LevelUps tracks level transitions (one per level gained).
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total levels gained across all adventurers.",
})

// AchievementsUnlocked tracks awards by achievement id.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements awarded.",
}, []string{"achievement"})

// StreakResets tracks broken streaks.
var StreakResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "streak_resets_total",
	Help:      "Total streaks reset after a missed day.",
})

// NotificationsSent tracks delivered notifications by type.
var NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_sent_total",
	Help:      "Total notifications stored for delivery.",
}, []string{"type"})

// NotificationsSuppressed tracks notifications dropped by policy or failure.
var NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "notifications_suppressed_total",
	Help:      "Notifications not delivered (daily_cap, quiet_hours, error).",
}, []string{"reason"})

// ─── Sweeps ─────────────────────────────────────────────────────────────────

// SweepRuns tracks scheduled sweep executions.
var SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sweep_runs_total",
	Help:      "Total quest sweeps executed.",
}, []string{"sweep"})

// SweepUserFailures tracks per-user failures inside sweeps.
var SweepUserFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "sweep_user_failures_total",
	Help:      "Per-user generation failures during sweeps.",
}, []string{"sweep"})

// SweepDuration tracks sweep wall time in seconds.
var SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "sweep_duration_seconds",
	Help:      "Quest sweep duration in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
}, []string{"sweep"})

// ─── Catalog ────────────────────────────────────────────────────────────────

// CatalogTemplates tracks the number of templates in the catalog.
var CatalogTemplates = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "catalog_templates",
	Help:      "Quest templates currently in the catalog.",
})

// CatalogCacheLookups tracks template pool cache hits and misses.
var CatalogCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "catalog_cache_lookups_total",
	Help:      "Template pool cache lookups by result (hit|miss).",
}, []string{"result"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by route pattern and status.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "Total HTTP requests.",
}, []string{"method", "route", "status"})

// HTTPLatency tracks API request duration.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check status (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks recovery actions attempted after a failed check.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total recovery actions attempted.",
}, []string{"check"})
