package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

func basketEvent(basketID, eventType string) domain.OutboxMessage {
	return domain.OutboxMessage{
		AggregateType: domain.AggregateBasket,
		AggregateID:   basketID,
		EventType:     eventType,
		Payload:       []byte(`{"basketId":"` + basketID + `"}`),
	}
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	generated, err := repo.Enqueue(ctx, basketEvent("basket-1", domain.EventBasketConfirmed))
	require.NoError(t, err)
	require.NotEmpty(t, generated.ID)
	assert.False(t, generated.CreatedAt.IsZero())

	fixed := basketEvent("basket-2", domain.EventBasketMerged)
	fixed.ID = "outbox-fixed-id"
	stored, err := repo.Enqueue(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, fixed.ID, stored.ID)

	_, err = repo.Enqueue(ctx, fixed)
	require.Error(t, err, "duplicate id must be rejected")

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "basket-1", pending[0].AggregateID)
	assert.JSONEq(t, `{"basketId":"basket-1"}`, string(pending[0].Payload))
	assert.Zero(t, pending[0].Attempts)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.Zero(t, stats.FailedCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, generated.ID))
	require.NoError(t, repo.MarkFailed(ctx, stored.ID))

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxStats{FailedCount: 1}, stats)
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	require.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}

func TestOutboxRepository_PostgresCanceledContext(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := repo.Enqueue(ctx, basketEvent("basket-1", domain.EventBasketConfirmed))
	require.Error(t, err)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
}

func TestOutboxRepository_PostgresOldestPendingMovesForward(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	first, err := repo.Enqueue(ctx, basketEvent("basket-old", domain.EventBasketConfirmed))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = repo.Enqueue(ctx, basketEvent("basket-new", domain.EventBasketConfirmed))
	require.NoError(t, err)

	before, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, before.PendingCount)

	require.NoError(t, repo.MarkSent(ctx, first.ID))

	after, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, after.OldestPendingAt.After(before.OldestPendingAt),
		"oldest pending should move forward: before=%s after=%s", before.OldestPendingAt, after.OldestPendingAt)
}
