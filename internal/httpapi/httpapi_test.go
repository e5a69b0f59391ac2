package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/equityrun/internal/metrics"
)

func TestHealthRouteReturnsHandlerJSON(t *testing.T) {
	health := func() map[string]any { return map[string]any{"running": true, "phase": "INTRADAY"} }
	router := NewRouter(health, metrics.New(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "\"running\":true")
}

func TestMetricsRouteServesPrometheusText(t *testing.T) {
	router := NewRouter(func() map[string]any { return nil }, metrics.New(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "equityrun_")
}

func TestMetricsRouteReturns503WithoutRegistry(t *testing.T) {
	router := NewRouter(func() map[string]any { return nil }, nil, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
