package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/basket/internal/domain"
	"github.com/vladislavdragonenkov/basket/internal/metrics"
	"github.com/vladislavdragonenkov/basket/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedRepo отдаёт заранее заданные результаты DeleteExpired; остальные методы не нужны.
type scriptedRepo struct {
	domain.IdempotencyRepository

	mu      sync.Mutex
	results []int
	err     error
	limits  []int
}

func (r *scriptedRepo) DeleteExpired(_ context.Context, _ time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.limits = append(r.limits, limit)
	if r.err != nil {
		return 0, r.err
	}
	if len(r.results) == 0 {
		return 0, nil
	}
	n := r.results[0]
	r.results = r.results[1:]
	return n, nil
}

func (r *scriptedRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limits)
}

func TestNewCleanupWorker_Options(t *testing.T) {
	w := NewCleanupWorker(nil, WithInterval(0), WithBatchSize(-1), WithLogger(nil))
	assert.Equal(t, defaultInterval, w.interval)
	assert.Equal(t, defaultBatchSize, w.batchSize)
	assert.NotNil(t, w.logger)

	w = NewCleanupWorker(nil, WithInterval(time.Second), WithBatchSize(3))
	assert.Equal(t, time.Second, w.interval)
	assert.Equal(t, 3, w.batchSize)
}

func TestCleanupWorker_Sweep(t *testing.T) {
	tests := []struct {
		name      string
		results   []int
		err       error
		wantTotal int
		wantCalls int
		wantErr   bool
	}{
		{name: "nothing expired", results: []int{0}, wantCalls: 1},
		{name: "stops on short batch", results: []int{2, 2, 1}, wantTotal: 5, wantCalls: 3},
		{name: "exact multiple needs an empty batch", results: []int{2, 2, 0}, wantTotal: 4, wantCalls: 3},
		{name: "repository error", err: errors.New("db down"), wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &scriptedRepo{results: tt.results, err: tt.err}
			w := NewCleanupWorker(repo, WithBatchSize(2))

			total, err := w.Sweep(context.Background(), time.Time{})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantTotal, total)
			assert.Equal(t, tt.wantCalls, repo.calls())
			for _, limit := range repo.limits {
				assert.Equal(t, 2, limit)
			}
		})
	}
}

func TestCleanupWorker_SweepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := &scriptedRepo{}
	total, err := NewCleanupWorker(repo).Sweep(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, total)
	assert.Zero(t, repo.calls())
}

func TestCleanupWorker_Metrics(t *testing.T) {
	m := metrics.NewCleanupMetrics(prometheus.NewRegistry())

	NewCleanupWorker(&scriptedRepo{results: []int{3}}, WithBatchSize(10), WithMetrics(m)).runOnce(context.Background())
	NewCleanupWorker(&scriptedRepo{err: errors.New("boom")}, WithMetrics(m)).runOnce(context.Background())

	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Runs.WithLabelValues("error")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.Deleted), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.LastDeleted), 0, "failed run resets the gauge")
}

func TestCleanupWorker_SweepMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()

	for _, key := range []string{"k1", "k2", "k3"} {
		_, err := repo.CreateProcessing(ctx, key, "hash", now.Add(-time.Minute))
		require.NoError(t, err)
	}
	_, err := repo.CreateProcessing(ctx, "fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	total, err := NewCleanupWorker(repo, WithBatchSize(2)).Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = repo.Get(ctx, "fresh")
	require.NoError(t, err)
}

func TestCleanupWorker_Run(t *testing.T) {
	repo := &scriptedRepo{}
	w := NewCleanupWorker(repo, WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	require.Eventually(t, func() bool { return repo.calls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop")
	}
}

func TestCleanupWorker_RunWithoutRepository(t *testing.T) {
	NewCleanupWorker(nil).Run(context.Background())
}
