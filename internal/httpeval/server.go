// Package httpeval is the reference sidecar: an HTTP server on a unix
// socket that evaluates code with internal/jsruntime.
package httpeval

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jseval/internal/infrastructure/logging"
	"github.com/GriffinCanCode/jseval/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jseval/internal/jsruntime"
	"github.com/GriffinCanCode/jseval/internal/protocol"
)

const shutdownTimeout = 5 * time.Second

// Config holds server configuration.
type Config struct {
	SocketPath  string
	Engine      jsruntime.Options
	Development bool
}

// Server wraps the HTTP server and its engine
type Server struct {
	router   *gin.Engine
	engine   *jsruntime.Engine
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	config   Config
	started  time.Time
}

// NewServer creates a new server instance
func NewServer(cfg Config, logger *logging.Logger) (*Server, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("socket path is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger.Logger
	}
	engine, err := jsruntime.New(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(monitoring.Middleware(metrics))

	s := &Server{
		router:   router,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		registry: registry,
		config:   cfg,
		started:  time.Now(),
	}

	router.POST(protocol.RunPath, s.Run)
	router.GET("/healthz", s.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return s, nil
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured socket until ctx is cancelled, then
// drains in-flight requests, stops the engine and removes the socket.
func (s *Server) Serve(ctx context.Context) error {
	path := s.config.SocketPath

	// A previous sidecar killed with SIGKILL leaves its socket behind.
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.engine.Close()
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		s.engine.Close()
		return fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting sidecar server", zap.String("socket", path))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	var result error
	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("Shutting down sidecar server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Graceful shutdown incomplete", zap.Error(err))
			srv.Close()
		}
	}

	s.engine.Close()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove socket", zap.String("socket", path), zap.Error(err))
	}
	s.logger.Sync()
	return result
}

// Close stops the engine without serving. Used when Serve was never called.
func (s *Server) Close() {
	s.engine.Close()
}
