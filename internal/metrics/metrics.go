// Package metrics declares the engine's Prometheus collectors.
// They register on the default registry and are served by the ops listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CompatibilityScores = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "matching_compatibility_score",
			Help:    "Distribution of computed compatibility scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"version"},
	)

	ScoreCacheOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_score_cache_ops_total",
			Help: "Score cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	RemoteScorerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_remote_scorer_fallbacks_total",
			Help: "Remote scoring calls that fell back to the local scorer",
		},
	)

	SelectionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_selections_total",
			Help: "Daily selection requests by outcome (created, existing, empty)",
		},
		[]string{"outcome"},
	)

	ChoicesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_choices_total",
			Help: "Choice submissions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	ChoiceConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_choice_conflicts_total",
			Help: "Optimistic-lock conflicts retried on the choose path",
		},
	)

	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_matches_total",
			Help: "Total number of mutual matches created",
		},
	)

	ChatCreationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_chat_creation_failures_total",
			Help: "Matches whose chat could not be requested",
		},
	)

	BatchUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_batch_users_total",
			Help: "Users processed by the daily batch, by outcome (succeeded, failed, skipped)",
		},
		[]string{"outcome"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_batch_duration_seconds",
			Help:    "Wall time of a daily selection batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	BatchErrorRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_batch_error_rate",
			Help: "Failed / total users of the most recent batch",
		},
	)

	CleanupRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_cleanup_rows_total",
			Help: "Rows touched by retention jobs (selections_deleted, pairings_expired)",
		},
		[]string{"kind"},
	)
)
