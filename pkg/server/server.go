package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/seo-audit/pkg/config"
	"github.com/Sriram-PR/seo-audit/pkg/metrics"
	"github.com/Sriram-PR/seo-audit/pkg/models"
	"github.com/Sriram-PR/seo-audit/pkg/orchestrate"
	"github.com/Sriram-PR/seo-audit/pkg/storage"
)

// Scanner runs one scan and reports its events. *orchestrate.Scanner satisfies it.
type Scanner interface {
	Run(ctx context.Context, req orchestrate.Request, emit orchestrate.EmitFunc) (*models.ScanReport, error)
}

// TargetValidator normalizes and vets scan targets. *guard.Guard satisfies it.
type TargetValidator interface {
	Validate(ctx context.Context, raw string) (string, error)
}

// Server is the HTTP/SSE front end of the audit service
type Server struct {
	cfg     *config.AppConfig
	scanner Scanner
	guard   TargetValidator
	limiter *ClientLimiter
	store   storage.ReportStore // nil when history is disabled
	metrics *metrics.Metrics    // nil disables /metrics
	log     *logrus.Entry
	newID   func() string
}

// Option customizes a Server
type Option func(*Server)

// WithStore persists finished reports and enables the history routes
func WithStore(store storage.ReportStore) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics records request metrics and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server
func New(cfg *config.AppConfig, scanner Scanner, guard TargetValidator, log *logrus.Entry, opts ...Option) (*Server, error) {
	limiter, err := NewClientLimiter(cfg.Server.RateLimitMax, cfg.Server.RateLimitWindow, cfg.Server.RateLimitMaxClients)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		scanner: scanner,
		guard:   guard,
		limiter: limiter,
		log:     log.WithField("component", "server"),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the routed handler with CORS and request logging applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /seo/scan/stream", s.handleScanStream)
	mux.HandleFunc("GET /seo/scans", s.handleListScans)
	mux.HandleFunc("GET /seo/scans/{id}", s.handleGetScan)
	if s.metrics != nil && !s.cfg.Server.DisableMetrics {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return s.withCORS(s.withRequestLog(mux))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully within the configured timeout
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("HTTP server listening on %s", s.cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("Graceful shutdown incomplete, closing connections: %v", err)
		return srv.Close()
	}
	s.log.Info("HTTP server stopped.")
	return nil
}
