package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
)

// Recorder пишет события корзины в transactional outbox.
// Нулевой репозиторий отключает запись.
type Recorder struct {
	repo    domain.OutboxRepository
	metrics *metrics.BasketMetrics
	logger  *log.Entry
}

// NewRecorder создаёт Recorder; repo и m могут быть nil.
func NewRecorder(repo domain.OutboxRepository, m *metrics.BasketMetrics, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "outbox-recorder")
	}
	return &Recorder{repo: repo, metrics: m, logger: logger}
}

// Record сериализует событие и ставит его в очередь. Ошибки только логируются:
// изменение в triple store уже применено и не откатывается.
func (r *Recorder) Record(ctx context.Context, basketID, eventType string, payload any) {
	if r == nil || r.repo == nil {
		return
	}

	fields := log.Fields{"basket_id": basketID, "event": eventType}

	msg, err := domain.NewOutboxMessage(basketID, eventType, payload)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Error("build outbox message failed")
		return
	}
	if _, err := r.repo.Enqueue(ctx, msg); err != nil {
		r.logger.WithError(err).WithFields(fields).Error("enqueue event failed")
		return
	}
	if r.metrics != nil {
		r.metrics.RecordEventEnqueued(eventType)
	}
}
