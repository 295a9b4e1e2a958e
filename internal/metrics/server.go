package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the registry's counters over HTTP for Prometheus to
// scrape. Metrics registered against prometheus.DefaultRegisterer are
// served automatically by promhttp.Handler(); Server always serves the
// default gatherer, so counters registered against a custom Registerer
// passed to New are not exposed here (both stage binaries use the default
// registry).
type Server struct {
	addr   string
	path   string
	server *http.Server
	extra  map[string]http.Handler
}

// NewServer constructs a metrics HTTP server listening on addr.
func NewServer(addr, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{addr: addr, path: path}
}

// Handle registers an additional endpoint (e.g. the per-digitiser
// counters diagnostics snapshot, §9 design note) on the same listener as
// the prometheus exposition. Must be called before Start.
func (s *Server) Handle(path string, h http.Handler) {
	if s.extra == nil {
		s.extra = make(map[string]http.Handler)
	}
	s.extra[path] = h
}

// Start begins serving in the background. It returns once the listener is
// configured; ListenAndServe errors after that point are logged, not
// returned, since the caller has already moved on to running its consumer
// loop.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())
	for path, h := range s.extra {
		mux.Handle(path, h)
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting metrics server", "addr", s.addr, "path", s.path)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down, waiting up to 5s for in-flight
// scrapes to finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}
	return nil
}
