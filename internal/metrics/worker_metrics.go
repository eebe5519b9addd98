package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics — метрики воркера публикации outbox.
type OutboxMetrics struct {
	PublishAttempts  *prometheus.CounterVec
	PendingRecords   prometheus.Gauge
	FailedRecords    prometheus.Gauge
	OldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики outbox в переданном registerer.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		PublishAttempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		PendingRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "basket_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		FailedRecords: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "basket_outbox_failed_records",
			Help: "Number of outbox records that exhausted publish attempts.",
		}),
		OldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "basket_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// CleanupMetrics — метрики очистки idempotency ключей.
type CleanupMetrics struct {
	Runs        *prometheus.CounterVec
	Deleted     prometheus.Counter
	LastDeleted prometheus.Gauge
}

// NewCleanupMetrics регистрирует метрики очистки в переданном registerer.
func NewCleanupMetrics(registerer prometheus.Registerer) *CleanupMetrics {
	return &CleanupMetrics{
		Runs: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		Deleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "basket_idempotency_cleanup_deleted_total",
			Help: "Total number of deleted expired idempotency records.",
		}),
		LastDeleted: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "basket_idempotency_cleanup_last_deleted",
			Help: "Number of deleted records during the last cleanup run.",
		}),
	}
}

// ConsumerMetrics — метрики обработки событий входа.
type ConsumerMetrics struct {
	Messages *prometheus.CounterVec
}

// NewConsumerMetrics регистрирует метрики consumer в переданном registerer.
func NewConsumerMetrics(registerer prometheus.Registerer) *ConsumerMetrics {
	return &ConsumerMetrics{
		Messages: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_session_events_total",
			Help: "Total number of consumed session events grouped by result.",
		}, []string{"result"}),
	}
}
