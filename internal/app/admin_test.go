package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/basket/internal/health"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := freeAddr(t)
	h := healthcheck.NewHandler("test")
	h.RegisterChecker("triplestore-breaker", healthcheck.NewStatusChecker("triplestore-breaker", func() (healthcheck.Status, string) {
		return healthcheck.StatusDegraded, "half-open"
	}))
	srv := startMetricsServer(ctx, addr, log.WithField("test", "metrics"), h)
	require.NotNil(t, srv)

	base := "http://" + addr
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/metrics", wantCode: http.StatusOK, contains: "go_goroutines"},
		{path: "/healthz", wantCode: http.StatusOK, contains: `"status":"degraded"`},
		{path: "/livez", wantCode: http.StatusOK, contains: "ok"},
		{path: "/readyz", wantCode: http.StatusOK, contains: "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := get(t, base+tt.path)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, body, tt.contains)
		})
	}

	h.RegisterChecker("triplestore", healthcheck.NewSimpleChecker("triplestore", func() error {
		return errors.New("connection refused")
	}))
	code, body := get(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body)

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err == nil {
			resp.Body.Close()
		}
		return err != nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestShutdownHTTP(t *testing.T) {
	shutdownHTTP(nil, log.WithField("test", "nil-server"))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(healthcheck.LivenessHandler), ReadHeaderTimeout: time.Second}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(lis) }()

	code, _ := get(t, "http://"+lis.Addr().String())
	require.Equal(t, http.StatusOK, code)

	shutdownHTTP(srv, log.WithField("test", "shutdown"))
	select {
	case err := <-served:
		require.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("server kept serving after shutdown")
	}
}

func TestNewAdminGRPCServer_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	logger := log.WithField("test", "grpc-admin")

	first, firstHealth := newAdminGRPCServer(reg, logger)
	second, _ := newAdminGRPCServer(reg, logger)

	resp, err := firstHealth.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
	assert.Contains(t, first.GetServiceInfo(), "grpc.health.v1.Health")

	stopGRPC(first, logger)
	stopGRPC(second, logger)
}

func TestBuildServices_Memory(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), loopbackConfig(), log.WithField("test", "build-services"))
	require.NoError(t, err)
	defer deps.close(log.WithField("test", "build-services"))

	svc := buildServices(loopbackConfig(), deps, deps.outboxRepo, prometheus.NewRegistry(), log.WithField("test", "build-services"))
	require.NotNil(t, svc.api)
	require.NotNil(t, svc.merger)

	api := svc.api.Handler()

	w := httptest.NewRecorder()
	api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ensure", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ensure", nil)
	req.Header.Set("mu-session-id", "http://mu.semte.ch/sessions/admin-test")
	api.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
