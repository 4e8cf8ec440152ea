package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/require"

	"memtrace/pkg/memlog"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, NewRouter(nil, nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	down := NewRouter(nil, func(context.Context) error { return errors.New("redis down") })
	require.Equal(t, http.StatusServiceUnavailable, get(t, down, "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{Name: "memtrace_test_total", Help: "test"}).Add(3)

	rec := get(t, NewRouter(reg, nil), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "memtrace_test_total 3")

	require.Equal(t, http.StatusNotFound, get(t, NewRouter(nil, nil), "/metrics").Code)
}

func TestDecodeEndpoint(t *testing.T) {
	h := NewRouter(nil, nil)
	payload := memlog.NewBuilder().
		SetStepID(42).
		SetOperation("MatMulGrad").
		SetAllocationID(1001).
		SetAllocatorName("gpu_bfc").
		SetDeferred(true).
		Build().
		Marshal()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/decode", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"stepId":"42","operation":"MatMulGrad","allocationId":"1001","allocatorName":"gpu_bfc","deferred":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/decode", strings.NewReader("\x12\x05ab")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.NotEmpty(t, body)
}
