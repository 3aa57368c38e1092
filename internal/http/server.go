// Package http serves a model pool over a JSON HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedpool/internal/logging"
	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// Pool is the part of *embedpool.Pool the server uses.
type Pool interface {
	Get(ctx context.Context) (*embedpool.Object, error)
	Status() embedpool.Status
}

// Server provides HTTP endpoints for one model pool.
type Server struct {
	echo     *echo.Echo
	pool     Pool
	model    embedpool.ModelKind
	logger   *zap.Logger
	config   *Config
	tracer   trace.Tracer
	registry *prometheus.Registry
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// BodyLimit caps request bodies, e.g. "16M". Empty means no limit.
	BodyLimit string

	// Version is reported by /api/v1/status.
	Version string
}

// Option configures NewServer.
type Option func(*Server)

// WithTracer sets the tracer request spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(s *Server) { s.registry = r }
}

// NewServer creates a server for pool, whose instances are built from model.
func NewServer(pool Pool, model embedpool.ModelKind, logger *zap.Logger, cfg *Config, meter metric.MeterProvider, opts ...Option) (*Server, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if model == nil {
		return nil, fmt.Errorf("model cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 9191,
		}
	}
	if meter == nil {
		meter = otel.GetMeterProvider()
	}

	s := &Server{
		pool:   pool,
		model:  model,
		logger: logger,
		config: cfg,
		tracer: otel.Tracer(httpInstrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if err := registerPoolCollector(s.registry, pool, model); err != nil {
		return nil, fmt.Errorf("registering pool metrics: %w", err)
	}
	rm, err := newRequestMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("creating request metrics: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.contextMiddleware)
	e.Use(rm.middleware)
	e.Use(s.logMiddleware)

	s.echo = e
	s.registerRoutes()
	return s, nil
}

// contextMiddleware starts the request span and attaches the request id and
// model to the request context for logging.
func (s *Server) contextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx, span := s.tracer.Start(req.Context(), req.Method+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.route", c.Path()),
				attribute.String("embedpool.kind", s.model.Kind().String()),
			),
		)
		defer span.End()

		id := c.Response().Header().Get(echo.HeaderXRequestID)
		if !logging.ValidRequestID(id) {
			id = uuid.NewString()
			c.Response().Header().Set(echo.HeaderXRequestID, id)
		}
		ctx = logging.WithRequestID(ctx, id)
		ctx = logging.WithModel(ctx, logging.Model{Kind: s.model.Kind().String(), Name: s.model.Model()})
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			span.RecordError(err)
		}
		status := c.Response().Status
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		return err
	}
}

func (s *Server) logMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		fields := append(logging.ContextFields(c.Request().Context()),
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		s.logger.Info("http request", fields...)
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/embed", s.handleEmbed)
	v1.POST("/embed/sparse", s.handleSparse)
	v1.POST("/embed/image", s.handleImage)
	v1.POST("/rerank", s.handleRerank)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// handleError renders every error as ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", append(logging.ContextFields(c.Request().Context()), zap.Error(err))...)
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}
