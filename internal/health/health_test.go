package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(status Status, msg string) Checker {
	return NewStatusChecker(string(status), func() (Status, string) { return status, msg })
}

func TestHandler_Checks(t *testing.T) {
	tests := []struct {
		name        string
		checkers    map[string]Checker
		wantStatus  Status
		wantHealthz int
		wantReadyz  int
		wantBody    string
	}{
		{
			name:        "no checkers",
			wantStatus:  StatusHealthy,
			wantHealthz: http.StatusOK,
			wantReadyz:  http.StatusOK,
			wantBody:    "ready",
		},
		{
			name: "all healthy",
			checkers: map[string]Checker{
				"triplestore": NewSimpleChecker("triplestore", func() error { return nil }),
				"postgres":    fixed(StatusHealthy, ""),
			},
			wantStatus:  StatusHealthy,
			wantHealthz: http.StatusOK,
			wantReadyz:  http.StatusOK,
			wantBody:    "ready",
		},
		{
			name: "degraded breaker keeps readiness",
			checkers: map[string]Checker{
				"triplestore":         fixed(StatusHealthy, ""),
				"triplestore-breaker": fixed(StatusDegraded, "half-open"),
			},
			wantStatus:  StatusDegraded,
			wantHealthz: http.StatusOK,
			wantReadyz:  http.StatusOK,
			wantBody:    "ready",
		},
		{
			name: "unhealthy wins over degraded",
			checkers: map[string]Checker{
				"triplestore-breaker": fixed(StatusDegraded, "open"),
				"triplestore":         NewSimpleChecker("triplestore", func() error { return errors.New("connection refused") }),
			},
			wantStatus:  StatusUnhealthy,
			wantHealthz: http.StatusServiceUnavailable,
			wantReadyz:  http.StatusServiceUnavailable,
			wantBody:    "not ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("v1.2.3")
			for name, c := range tt.checkers {
				h.RegisterChecker(name, c)
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, tt.wantHealthz, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "v1.2.3", resp.Version)
			assert.Len(t, resp.Checks, len(tt.checkers))

			w = httptest.NewRecorder()
			h.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.wantReadyz, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestHandler_EvaluateRunsChecksConcurrently(t *testing.T) {
	h := NewHandler("test")
	for _, name := range []string{"a", "b", "c"} {
		h.RegisterChecker(name, NewSimpleChecker(name, func() error {
			time.Sleep(50 * time.Millisecond)
			return nil
		}))
	}

	start := time.Now()
	resp := h.Evaluate()
	assert.Less(t, time.Since(start), 140*time.Millisecond)
	assert.Len(t, resp.Checks, 3)
}

func TestHandler_RegisterReplacesAndNames(t *testing.T) {
	h := NewHandler("test")
	h.RegisterChecker("postgres", fixed(StatusUnhealthy, "down"))
	h.RegisterChecker("postgres", fixed(StatusHealthy, ""))
	h.RegisterChecker("triplestore", fixed(StatusHealthy, ""))

	assert.Equal(t, []string{"postgres", "triplestore"}, h.Names())
	assert.Equal(t, StatusHealthy, h.Evaluate().Status)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSimpleChecker(t *testing.T) {
	slow := NewSimpleChecker("slow", func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check()
	assert.Equal(t, StatusHealthy, slow.Status)
	assert.Equal(t, "slow", slow.Name)
	assert.GreaterOrEqual(t, slow.DurationMs, int64(10))

	failed := NewSimpleChecker("broken", func() error { return errors.New("test error") }).Check()
	assert.Equal(t, StatusUnhealthy, failed.Status)
	assert.Equal(t, "test error", failed.Message)
}

func TestPingChecker_Timeout(t *testing.T) {
	check := NewPingChecker("triplestore", 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}).Check()

	assert.Equal(t, StatusUnhealthy, check.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), check.Message)
}
