// Package httpapi exposes the Coordinator's Health() view and the
// metrics Registry over HTTP, the way the teacher pack exposes a
// monitor surface with gorilla/mux: one small router, no middleware
// stack beyond what the two routes need.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/equityrun/internal/metrics"
)

// HealthFunc returns the current Coordinator.Health() snapshot.
type HealthFunc func() map[string]any

// NewRouter builds the /health and /metrics routes. health is called
// fresh on every request; metr may be nil, in which case /metrics
// answers 503 rather than panicking on a missing registry.
func NewRouter(health HealthFunc, metr *metrics.Registry, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health()); err != nil {
			log.Warn().Err(err).Msg("httpapi: health encode failed")
		}
	}).Methods(http.MethodGet)

	if metr != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metr.Gatherer(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	} else {
		r.HandleFunc("/metrics", func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "metrics registry not configured", http.StatusServiceUnavailable)
		}).Methods(http.MethodGet)
	}

	return r
}

// Serve starts an HTTP server bound to addr and blocks until the
// server stops or returns an error other than http.ErrServerClosed.
func Serve(addr string, router *mux.Router) error {
	srv := &http.Server{Addr: addr, Handler: router}
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
