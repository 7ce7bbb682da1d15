// Package rest exposes the account services over HTTP.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrijs2005/domainx/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Registry is where the HTTP metrics are registered and read from.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Config holds the listen addresses and request limits of the API.
type Config struct {
	Address        string
	MetricsAddress string
	// Production turns on Secure cookies.
	Production bool
	BodyLimit  string
}

type Server struct {
	config  Config
	logger  logging.Logger
	api     *echo.Echo
	metrics *echo.Echo
}

// NewServer mounts one /api/{kind}/auth group per service plus the health
// and metrics endpoints.
func NewServer(cfg Config, l logging.Logger, reg Registry, health Pinger, svcs ...AccountService) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: l.With("module", "http_server"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.OFF)
	e.Validator = requestValidator{}
	e.HTTPErrorHandler = s.errorHandler

	promMW, err := echoprometheus.MiddlewareConfig{
		Namespace:  "domainx",
		Subsystem:  "http",
		Registerer: reg,
	}.ToMiddleware()
	if err != nil {
		return nil, err
	}

	limit := cfg.BodyLimit
	if limit == "" {
		limit = "1M"
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return cuid2.Generate()
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(limit))
	e.Use(promMW)
	e.Use(s.requestLogger())

	e.GET("/healthz", func(c echo.Context) error {
		if err := health.Ping(c.Request().Context()); err != nil {
			s.logger.Error(c.Request().Context(), "health check failed", "error", err.Error())
			return fail(c, http.StatusServiceUnavailable, "Storage unavailable", nil)
		}
		return ok(c, "OK", nil)
	})

	for _, svc := range svcs {
		p := svc.Policy()
		h := &accountHandler{
			svc:          svc,
			kind:         p.Kind,
			cookieName:   p.CookieName,
			secureCookie: cfg.Production,
		}
		h.routes(e.Group("/api/" + p.Kind + "/auth"))
	}
	s.api = e

	m := echo.New()
	m.HideBanner = true
	m.HidePort = true
	m.Logger.SetLevel(log.OFF)
	m.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
	s.metrics = m

	return s, nil
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug(c.Request().Context(), "request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency.String(),
				"request_id", v.RequestID)
			return nil
		},
	})
}

// Handler is the API router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.api
}

// MetricsHandler serves /metrics.
func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	return s.serve(ctx, s.api, s.config.Address, "API")
}

// RunMetrics serves /metrics on its own listener until ctx is cancelled.
func (s *Server) RunMetrics(ctx context.Context) error {
	if s.config.MetricsAddress == "" {
		return nil
	}
	return s.serve(ctx, s.metrics, s.config.MetricsAddress, "metrics")
}

func (s *Server) serve(ctx context.Context, e *echo.Echo, address, name string) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...", "listener", name)

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			s.logger.Error(sctx, "error shutting down", "listener", name, "error", err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "listener", name, "address", address)

	if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
