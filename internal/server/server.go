// Package server exposes a workflow over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/agentstation/codescope"
)

const serviceName = "codescope"

// Runner executes a review. *codescope.Workflow implements it.
type Runner interface {
	Run(ctx context.Context, input string) (*codescope.Report, error)
}

// Options configures a Server.
type Options struct {
	// Model is reported by the status endpoint.
	Model string
	// MaxInputBytes bounds the request body; zero means 64 KiB.
	MaxInputBytes int64
	Logger        *slog.Logger
	// Registry receives the HTTP metrics and is served on /metrics. A nil
	// registry gets a private one.
	Registry *prometheus.Registry
	// ShutdownTimeout bounds graceful shutdown; zero means 10s.
	ShutdownTimeout time.Duration
}

// Server serves the review API.
type Server struct {
	runner  Runner
	opts    Options
	metrics *Metrics
	router  *gin.Engine
}

// New creates a server for runner.
func New(runner Runner, opts Options) *Server {
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = 64 << 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		runner:  runner,
		opts:    opts,
		metrics: NewMetrics(opts.Registry),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(s.requestLogger())

	router.GET("/", s.handleStatus)
	router.GET("/health", s.handleHealth)
	router.POST("/evaluate", s.handleEvaluate)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Registry, promhttp.HandlerOpts{})))

	return router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.opts.Logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.opts.Logger.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
