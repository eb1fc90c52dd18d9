// Package metrics provides Prometheus metrics for the customers service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncBatchesTotal tracks sync batches by outcome
	SyncBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "sync",
			Name:      "batches_total",
			Help:      "Total number of order sync batches by status",
		},
		[]string{"status"},
	)

	// SyncBatchDuration tracks sync batch duration in seconds
	SyncBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "customers",
			Subsystem: "sync",
			Name:      "batch_duration_seconds",
			Help:      "Duration of order sync batches in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// SyncOrdersTotal tracks orders seen by sync, by outcome
	SyncOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "sync",
			Name:      "orders_total",
			Help:      "Total number of orders processed by sync by outcome",
		},
		[]string{"outcome"},
	)

	// CustomersWrittenTotal tracks customer identity writes
	CustomersWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "identity",
			Name:      "customers_written_total",
			Help:      "Total number of customer identities created or updated",
		},
		[]string{"operation"},
	)

	// AccountsCreatedTotal tracks customer accounts created by account upkeep
	AccountsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "identity",
			Name:      "accounts_created_total",
			Help:      "Total number of customer accounts created",
		},
	)

	// GroupsFailedTotal tracks order groups whose transaction failed
	GroupsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "sync",
			Name:      "groups_failed_total",
			Help:      "Total number of order groups that failed to sync",
		},
	)

	// RecomputeRunsTotal tracks full-population recompute runs by status
	RecomputeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "recompute",
			Name:      "runs_total",
			Help:      "Total number of recompute runs by status",
		},
		[]string{"status"},
	)

	// RecomputeDuration tracks recompute run duration in seconds
	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "customers",
			Subsystem: "recompute",
			Name:      "duration_seconds",
			Help:      "Duration of recompute runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// RulesLoaded tracks the number of active tag rules currently loaded
	RulesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "customers",
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Number of active tag rules loaded into the engine",
		},
	)

	// RuleRefreshesTotal tracks rule refreshes by status
	RuleRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "rules",
			Name:      "refreshes_total",
			Help:      "Total number of rule and settings refreshes by status",
		},
		[]string{"status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks Kafka messages consumed
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of order messages consumed from Kafka",
		},
		[]string{"status"},
	)

	// GraphProjectionsTotal tracks graph projection writes
	GraphProjectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "customers",
			Subsystem: "graph",
			Name:      "projections_total",
			Help:      "Total number of customer graph projections by status",
		},
		[]string{"status"},
	)
)

// RecordSyncBatch records a sync batch metric
func RecordSyncBatch(status string, durationSeconds float64) {
	SyncBatchesTotal.WithLabelValues(status).Inc()
	SyncBatchDuration.Observe(durationSeconds)
}

// RecordSyncOrders records orders by outcome. Zero counts are skipped.
func RecordSyncOrders(outcome string, count int) {
	if count > 0 {
		SyncOrdersTotal.WithLabelValues(outcome).Add(float64(count))
	}
}

// RecordCustomerWrite records a customer create or update
func RecordCustomerWrite(operation string) {
	CustomersWrittenTotal.WithLabelValues(operation).Inc()
}

// RecordRecompute records a recompute run
func RecordRecompute(status string, durationSeconds float64) {
	RecomputeRunsTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		RecomputeDuration.Observe(durationSeconds)
	}
}

// RecordRuleRefresh records a rule refresh and the resulting rule count
func RecordRuleRefresh(status string, loaded int) {
	RuleRefreshesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		RulesLoaded.Set(float64(loaded))
	}
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

// RecordKafkaConsume records a consumed Kafka message
func RecordKafkaConsume(status string) {
	KafkaMessagesConsumed.WithLabelValues(status).Inc()
}

// RecordGraphProjection records a graph projection write
func RecordGraphProjection(status string) {
	GraphProjectionsTotal.WithLabelValues(status).Inc()
}
