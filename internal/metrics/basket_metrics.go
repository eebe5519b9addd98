package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/basket/internal/sparql"
)

var storeBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// BasketMetrics содержит доменные метрики корзины.
type BasketMetrics struct {
	basketsCreated  prometheus.Counter
	linesAdded      prometheus.Counter
	linesRemoved    prometheus.Counter
	linesRejected   *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	merges          *prometheus.CounterVec
	mergedLines     prometheus.Counter
	eventsEnqueued  *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	storeOperations *prometheus.CounterVec
}

// NewBasketMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewBasketMetrics() *BasketMetrics {
	return NewBasketMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewBasketMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewBasketMetricsWithRegisterer(registerer prometheus.Registerer) *BasketMetrics {
	return &BasketMetrics{
		basketsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "basket_created_total",
			Help: "Total number of baskets created.",
		}),
		linesAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "basket_order_lines_added_total",
			Help: "Total number of order lines added to baskets.",
		}),
		linesRemoved: registerCounter(registerer, prometheus.CounterOpts{
			Name: "basket_order_lines_removed_total",
			Help: "Total number of order lines removed from baskets.",
		}),
		linesRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_order_lines_rejected_total",
			Help: "Total number of order lines rejected grouped by reason.",
		}, []string{"reason"}),
		confirmations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_confirmations_total",
			Help: "Total number of confirm attempts grouped by result.",
		}, []string{"result"}),
		merges: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_merges_total",
			Help: "Total number of session to account merges grouped by result.",
		}, []string{"result"}),
		mergedLines: registerCounter(registerer, prometheus.CounterOpts{
			Name: "basket_merged_order_lines_total",
			Help: "Total number of order lines moved into account baskets.",
		}),
		eventsEnqueued: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_outbox_events_total",
			Help: "Total number of basket events written to the outbox.",
		}, []string{"event_type"}),
		storeDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "basket_triplestore_request_duration_seconds",
			Help:    "Duration of triple store requests in seconds.",
			Buckets: storeBuckets,
		}, []string{"operation"}),
		storeOperations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "basket_triplestore_requests_total",
			Help: "Total number of triple store requests grouped by operation and result.",
		}, []string{"operation", "result"}),
	}
}

func (m *BasketMetrics) RecordBasketCreated() {
	m.basketsCreated.Inc()
}

func (m *BasketMetrics) RecordOrderLineAdded() {
	m.linesAdded.Inc()
}

func (m *BasketMetrics) RecordOrderLineRemoved() {
	m.linesRemoved.Inc()
}

// RecordOrderLineRejected учитывает отклонённую строку (reason: amount, offering).
func (m *BasketMetrics) RecordOrderLineRejected(reason string) {
	m.linesRejected.WithLabelValues(reason).Inc()
}

// RecordConfirmation учитывает попытку подтверждения (result: confirmed, rejected, lost_race, error).
func (m *BasketMetrics) RecordConfirmation(result string) {
	m.confirmations.WithLabelValues(result).Inc()
}

// RecordMerge учитывает перенос корзины (result: merged, noop, error).
func (m *BasketMetrics) RecordMerge(result string, lines int) {
	m.merges.WithLabelValues(result).Inc()
	if lines > 0 {
		m.mergedLines.Add(float64(lines))
	}
}

func (m *BasketMetrics) RecordEventEnqueued(eventType string) {
	m.eventsEnqueued.WithLabelValues(eventType).Inc()
}

// RecordStoreRequest записывает длительность и результат запроса к triple store.
func (m *BasketMetrics) RecordStoreRequest(operation string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
	m.storeOperations.WithLabelValues(operation, result).Inc()
}

type instrumentedExecutor struct {
	next    sparql.Executor
	metrics *BasketMetrics
}

// InstrumentExecutor оборачивает Executor записью метрик запросов.
func InstrumentExecutor(next sparql.Executor, m *BasketMetrics) sparql.Executor {
	if m == nil {
		return next
	}
	return &instrumentedExecutor{next: next, metrics: m}
}

func (e *instrumentedExecutor) Query(ctx context.Context, q sparql.Select) (sparql.Results, error) {
	start := time.Now()
	res, err := e.next.Query(ctx, q)
	e.metrics.RecordStoreRequest("query", time.Since(start), err)
	return res, err
}

func (e *instrumentedExecutor) Update(ctx context.Context, ops ...sparql.Update) error {
	start := time.Now()
	err := e.next.Update(ctx, ops...)
	e.metrics.RecordStoreRequest("update", time.Since(start), err)
	return err
}
