package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server to provide graceful startup and shutdown helpers.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates the public API server.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	return newHTTPServer(":"+cfg.Port, handler, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout, cfg.HTTPIdleTimeout)
}

// NewMetricsServer serves only the Prometheus scrape endpoint on METRICS_PORT.
func NewMetricsServer(cfg *Config, metrics *Metrics) *HTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return newHTTPServer(":"+cfg.MetricsPort, mux, 5*time.Second, 10*time.Second, time.Minute)
}

func newHTTPServer(addr string, handler http.Handler, read, write, idle time.Duration) *HTTPServer {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       read,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       idle,
	}
	return &HTTPServer{server: srv}
}

// Addr reports the listen address.
func (s *HTTPServer) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Start runs the HTTP server in the current goroutine. A graceful shutdown is
// not reported as an error.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
