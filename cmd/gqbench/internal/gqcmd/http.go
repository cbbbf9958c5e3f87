package gqcmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gordian-engine/gqbench/gbench"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricsServer exposes Prometheus metrics and driver state over HTTP
// for the duration of a run.
type metricsServer struct {
	done chan struct{}
}

type metricsServerConfig struct {
	Listener net.Listener

	Gatherer prometheus.Gatherer
	Driver   *gbench.Driver
}

func newMetricsServer(ctx context.Context, log *slog.Logger, cfg metricsServerConfig) *metricsServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s := &metricsServer{
		done: make(chan struct{}),
	}
	go s.serve(log, cfg.Listener, srv)
	go s.waitForShutdown(ctx, srv)

	return s
}

func (s *metricsServer) Wait() {
	<-s.done
}

func (s *metricsServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *metricsServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("Metrics server shutting down")
		} else {
			log.Info("Metrics server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg metricsServerConfig) http.Handler {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/state", handleState(log, cfg)).Methods("GET")

	return r
}

type stateResponse struct {
	Run   string `json:"run"`
	State string `json:"state"`
}

func handleState(log *slog.Logger, cfg metricsServerConfig) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := stateResponse{
			Run:   cfg.Driver.Name(),
			State: cfg.Driver.State().String(),
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Warn("Failed to encode driver state", "err", err)
			return
		}
	}
}
