package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func get(t *testing.T, handler http.Handler, path string) (*http.Response, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	res := rec.Result()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func TestHealthHandler(t *testing.T) {
	res, body := get(t, HealthHandler(), "/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body)

	down := HealthHandler(func() error { return nil }, func() error { return errors.New("mqtt disconnected") })
	res, body = get(t, down, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Contains(t, body, "mqtt disconnected")
}

func TestStatusHandler(t *testing.T) {
	handler := StatusHandler(func() any {
		return map[string]any{"mode": "Float", "ready": []int{1, 2}}
	})

	res, body := get(t, handler, "/status")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"mode":"Float","ready":[1,2]}`, body)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMux(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "duckswarm_test_gauge", Help: "test"})
	gauge.Set(3)
	registry, err := MetricsRegistry("test", gauge)
	require.NoError(t, err)

	mux := NewMux(HealthHandler(), StatusHandler(func() any { return struct{}{} }), registry)

	res, body := get(t, mux, "/metrics")
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, "duckswarm_test_gauge 3")
	assert.True(t, strings.Contains(body, `duckswarm_build_info{version="test"} 1`))

	res, _ = get(t, mux, "/health")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, err = MetricsRegistry("test", gauge, gauge)
	assert.Error(t, err, "duplicate collectors are rejected")
}

func TestGRPCHealth(t *testing.T) {
	srv, err := NewGRPCServer("127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	defer srv.Stop()

	conn, err := grpc.NewClient(srv.Listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		res, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: CoordinatorService})
		require.NoError(t, err)
		return res.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
	srv.SetServing(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())
	srv.SetServing(false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
