// Package outbox записывает события корзины в transactional outbox и публикует их в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// Результаты попыток в basket_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultRetryError = "retry_error"
	resultFailed     = "failed"
	resultDLQFailed  = "dlq_failed"
)

// Worker периодически забирает pending-события и публикует их. Событие, которое не
// удалось отправить за maxAttempts попыток, помечается failed и копируется в DLQ.
type Worker struct {
	repo         domain.OutboxRepository
	publisher    domain.OutboxPublisher
	dlqPublisher domain.OutboxPublisher
	metrics      *metrics.OutboxMetrics
	logger       *log.Entry

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// Option настраивает Worker. Нулевые и отрицательные значения оставляют значение по умолчанию.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher задаёт, куда копировать окончательно не доставленные события.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlqPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается. Ноль отключает паузы.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.retryBaseDelay = d
		}
	}
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run обрабатывает батч сразу и затем раз в pollInterval, пока ctx не отменён.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if res := w.ProcessOnce(ctx); res.Sent+res.Failed > 0 {
			w.logger.WithFields(log.Fields{"sent": res.Sent, "failed": res.Failed}).Debug("outbox batch processed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BatchResult — итог одного ProcessOnce.
type BatchResult struct {
	Sent   int
	Failed int
}

// ProcessOnce публикует один батч pending-событий.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox failed")
		return res
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		entry := w.logger.WithFields(log.Fields{
			"outbox_id":  msg.ID,
			"event_type": msg.EventType,
			"basket_id":  msg.AggregateID,
		})

		if err := w.deliver(ctx, msg); err != nil {
			res.Failed++
			w.count(resultFailed)
			entry.WithError(err).Error("outbox event undeliverable")
			if dlqErr := w.deadLetter(ctx, msg, err); dlqErr != nil {
				w.count(resultDLQFailed)
				entry.WithError(dlqErr).Warn("dlq publish failed")
			}
			if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
				entry.WithError(err).Warn("mark outbox failed")
			}
			continue
		}

		res.Sent++
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("mark outbox sent")
		}
	}
	return res
}

func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			w.count(resultSent)
			return nil
		}
		w.count(resultRetryError)
		if attempt >= w.maxAttempts {
			return fmt.Errorf("publish %s after %d attempts: %w", msg.ID, attempt, err)
		}

		if d := w.retryBackoff(attempt); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
}

// retryBackoff удваивает паузу с каждой попыткой, не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	d := w.retryBaseDelay
	for i := 1; i < attempt && d > 0 && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

func (w *Worker) count(result string) {
	if w.metrics != nil {
		w.metrics.PublishAttempts.WithLabelValues(result).Inc()
	}
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("outbox stats failed")
		return
	}

	w.metrics.PendingRecords.Set(float64(stats.PendingCount))
	w.metrics.FailedRecords.Set(float64(stats.FailedCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	w.metrics.OldestPendingAge.Set(age)
}

// dlqEnvelope — содержимое DLQ-сообщения для недоставленного события.
type dlqEnvelope struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	OccurredAt     time.Time       `json:"occurred_at,omitzero"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	if w.dlqPublisher == nil {
		return nil
	}

	original := json.RawMessage(msg.Payload)
	if !json.Valid(original) {
		original = json.RawMessage("null")
	}
	body, err := json.Marshal(dlqEnvelope{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        original,
		PublishError:   cause.Error(),
		OccurredAt:     msg.CreatedAt,
		DLQPublishedAt: w.now(),
	})
	if err != nil {
		return fmt.Errorf("encode dlq envelope: %w", err)
	}

	letter := msg
	letter.Payload = body
	if err := w.dlqPublisher.Publish(ctx, letter); err != nil {
		return fmt.Errorf("publish %s to dlq: %w", msg.ID, err)
	}
	return nil
}
