package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StartServer exposes g on its own port so scrapes never queue behind query
// traffic. It returns the server's shutdown function.
func StartServer(port int, g prometheus.Gatherer) (shutdown func(context.Context) error) {
	logger := slog.Default().With("component", "metrics-server")
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newMux(g),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	go func() {
		logger.Info("serving metrics", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server.Shutdown
}

// newMux serves the scrape endpoint only; any other path is a 404 naming it.
func newMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(g))
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "drop bot metrics are served at /metrics", http.StatusNotFound)
	})
	return mux
}
