// Package api serves the synchronous query surface and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/snapshot"
	"mqtt-trade-relay/internal/stats"
)

// Server hosts /metrics and the read-only query endpoints. Handlers only
// read cached state and never touch the ingestion path.
type Server struct {
	server *http.Server
	logger *logger.Logger
}

func NewServer(cfg *config.HTTPConfig, facade *snapshot.Facade, st *stats.Collector, reg *prometheus.Registry, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	if reg != nil {
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
	}

	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, _ *http.Request) {
		view, ok := facade.Status()
		if !ok {
			writeNoData(w)
			return
		}
		writeJSON(w, log, view)
	})

	mux.HandleFunc("GET /api/v1/balance", func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := facade.Balance()
		if !ok {
			writeNoData(w)
			return
		}
		writeJSON(w, log, snap)
	})

	mux.HandleFunc("GET /api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		snap, ok := facade.Stats()
		if !ok {
			writeNoData(w)
			return
		}
		writeJSON(w, log, snap)
	})

	mux.HandleFunc("GET /api/v1/relay", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, log, st.Snapshot())
	})

	return &Server{
		server: &http.Server{
			Addr:    cfg.Address,
			Handler: mux,
		},
		logger: log,
	}
}

// Start serves until Shutdown. Blocks; callers run it in a goroutine.
func (s *Server) Start() {
	s.logger.Info("starting http server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("http server error", "error", err)
	}
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "error", err)
	}
}

func writeNoData(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(`{"error":"no data"}`))
}
