// Package api provides the optional local status listener exposed while a
// run is in flight: /healthz for liveness probes and /metrics for
// Prometheus scrapes of long-running pipelines.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewStatusServer builds the HTTP server for the given port.
func NewStatusServer(port int) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Start serves in the background until the server is shut down. Listener
// failures are logged, not fatal: the status surface is advisory.
func Start(srv *http.Server, log *slog.Logger) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("status server stopped", "addr", srv.Addr, "error", err.Error())
		}
	}()
}
