package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

type outboxState uint8

const (
	statePending outboxState = iota
	stateSent
	stateFailed
)

type outboxEntry struct {
	msg       domain.OutboxMessage
	state     outboxState
	updatedAt time.Time
}

// OutboxRepository держит outbox в памяти процесса. PullPending отдаёт сообщения
// в порядке Enqueue.
type OutboxRepository struct {
	mu      sync.RWMutex
	queue   []*outboxEntry
	byID    map[string]*outboxEntry
	now     func() time.Time
	maxPull int
}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{
		byID:    make(map[string]*outboxEntry),
		now:     func() time.Time { return time.Now().UTC() },
		maxPull: 100,
	}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxMessage{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if _, dup := r.byID[msg.ID]; dup {
		return domain.OutboxMessage{}, fmt.Errorf("outbox message %s already exists", msg.ID)
	}
	msg.CreatedAt = r.now()
	msg.Attempts = 0

	e := &outboxEntry{msg: copyMessage(msg), state: statePending, updatedAt: msg.CreatedAt}
	r.byID[msg.ID] = e
	r.queue = append(r.queue, e)
	return msg, nil
}

func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = r.maxPull
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutboxMessage
	for _, e := range r.queue {
		if len(out) == limit {
			break
		}
		if e.state == statePending {
			out = append(out, copyMessage(e.msg))
		}
	}
	return out, nil
}

func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, e := range r.queue {
		switch e.state {
		case statePending:
			stats.PendingCount++
			if stats.OldestPendingAt.IsZero() || e.msg.CreatedAt.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = e.msg.CreatedAt
			}
		case stateFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.transition(ctx, id, stateSent)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, stateFailed)
}

func (r *OutboxRepository) transition(ctx context.Context, id string, to outboxState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("outbox message %s not found: %w", id, domain.ErrOutboxPublish)
	}
	e.state = to
	e.msg.Attempts++
	e.updatedAt = r.now()
	return nil
}

// AllPending — снимок pending-сообщений для тестов.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.OutboxMessage
	for _, e := range r.queue {
		if e.state == statePending {
			out = append(out, copyMessage(e.msg))
		}
	}
	return out
}

func copyMessage(msg domain.OutboxMessage) domain.OutboxMessage {
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
