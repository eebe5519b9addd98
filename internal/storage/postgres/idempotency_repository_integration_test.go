package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/basket/internal/domain"
)

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()
	ttl := time.Now().UTC().Add(2 * time.Hour).Truncate(time.Second)

	rec, err := repo.CreateProcessing(ctx, "basket-add-1", "hash-1", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, rec.Status)
	assert.False(t, rec.Replayable())

	_, err = repo.CreateProcessing(ctx, "basket-add-1", "hash-1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	existing, err := repo.CreateProcessing(ctx, "basket-add-1", "hash-2", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)
	assert.Equal(t, "hash-1", existing.RequestHash)

	require.NoError(t, repo.MarkDone(ctx, "basket-add-1", []byte(`{"uuid":"b-1"}`), 201))

	got, err := repo.Get(ctx, "basket-add-1")
	require.NoError(t, err)
	assert.True(t, got.Replayable())
	assert.Equal(t, 201, got.HTTPStatus)
	assert.JSONEq(t, `{"uuid":"b-1"}`, string(got.ResponseBody))
	assert.True(t, got.TTLAt.Equal(ttl), "ttl %s != %s", got.TTLAt, ttl)

	require.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "basket-confirm", "old", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, "basket-confirm", []byte(`{"errors":[]}`), 502))

	rec, err := repo.CreateProcessing(ctx, "basket-confirm", "new", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "new", rec.RequestHash)

	got, err := repo.Get(ctx, "basket-confirm")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, got.Status)
	assert.Zero(t, got.HTTPStatus)
	assert.Empty(t, got.ResponseBody)
}

func TestIdempotencyRepository_DeleteExpiredOldestFirst(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i, key := range []string{"old-1", "old-2", "old-3"} {
		_, err := repo.CreateProcessing(ctx, key, "h", now.Add(time.Duration(i-5)*time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "live", "h", now.Add(time.Hour))
	require.NoError(t, err)

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "old-3")
	require.NoError(t, err)

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "live")
	require.NoError(t, err)
}
