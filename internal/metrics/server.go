package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 5 * time.Second

// Server exposes /metrics on its own address for processes without an API.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server for m listening on addr.
func NewServer(addr string, m *Metrics) *Server {
	router := chi.NewRouter()
	router.Handle("/metrics", m.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.httpServer.SetKeepAlivesEnabled(false)
		_ = s.httpServer.Shutdown(shutdownCtx)
		slog.Info("metrics server stopped")
	}()

	slog.Info("serving metrics", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
