package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	srv *http.Server
}

func NewServer(addr string, h *Handler, withMetrics bool) *Server {
	mux := http.NewServeMux()
	h.Register(mux)
	if withMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      withRecovery(withCORS(mux)),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("http: listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
