package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-udp/config"
)

type readiness struct{ err error }

func (r readiness) CheckReadiness(context.Context) error { return r.err }

func get(t *testing.T, srv *Server, path string) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]string
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(":0", readiness{}, slog.Default())
	code, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_Readyz(t *testing.T) {
	code, body := get(t, NewServer(":0", readiness{}, slog.Default()), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	code, body = get(t, NewServer(":0", readiness{err: errors.New("socket not bound")}, slog.Default()), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "socket not bound", body["error"])
}

func TestServer_Metrics(t *testing.T) {
	code, _ := get(t, NewServer(":0", readiness{}, slog.Default()), "/metrics")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()
	a.SendErrors.Inc()
	a.Requests.WithLabelValues("temperature", "OK").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.SendErrors))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.SendErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.Requests.WithLabelValues("temperature", "OK")))
}

func TestNewLogger_LevelFromConfig(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, logger, slog.Default())

	logger = NewLogger(&config.Config{LogLevel: "verbose", LogFormat: "json"})
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
}
