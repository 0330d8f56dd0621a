// Package server assembles the review and admin HTTP API
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/routes/alias"
	"github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/graph"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/pendingmatch"
	"github.com/Ramsey-B/fern/pkg/routes/resolve"
)

type Config struct {
	AppName           string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
	AllowOrigins      []string
	AllowMethods      []string
}

// Handlers are the route groups served under /api/v1
type Handlers struct {
	Health       *health.Checker
	Resolve      *resolve.Handler
	PendingMatch *pendingmatch.Handler
	Alias        *alias.Handler
	Entity       *entity.Handler
	Graph        *graph.Handler
}

// Server is a startup dependency serving the HTTP API
type Server struct {
	echo   *echo.Echo
	http   *http.Server
	health *health.Checker
	logger ectologger.Logger
	deps   []string
}

func New(cfg Config, handlers Handlers, logger ectologger.Logger, dependsOn ...string) *Server {
	e := NewEcho(cfg.AppName, cfg.AllowOrigins, cfg.AllowMethods, handlers, logger)

	return &Server{
		echo: e,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           e,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		health: handlers.Health,
		logger: logger,
		deps:   dependsOn,
	}
}

// NewEcho builds the router with the middleware chain and every route registered
func NewEcho(appName string, allowOrigins, allowMethods []string, handlers Handlers, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(appName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	if len(allowOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
			AllowOrigins: allowOrigins,
			AllowMethods: allowMethods,
			AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderUserID},
		}))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if handlers.Health != nil {
		handlers.Health.RegisterRoutes(e)
	}

	api := e.Group("/api/v1")
	if handlers.Resolve != nil {
		handlers.Resolve.Register(api)
	}
	if handlers.PendingMatch != nil {
		handlers.PendingMatch.Register(api.Group("/pending-matches"))
	}
	if handlers.Alias != nil {
		handlers.Alias.Register(api.Group("/aliases"))
	}
	entities := api.Group("/entities")
	if handlers.Entity != nil {
		handlers.Entity.Register(entities)
	}
	if handlers.Graph != nil {
		handlers.Graph.Register(entities)
	}
	return e
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) GetName() string {
	return "http"
}

func (s *Server) DependsOn() []string {
	return s.deps
}

// Start listens in the background; the server is marked ready once it is accepting
func (s *Server) Start(ctx context.Context) error {
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	if s.health != nil {
		s.health.SetReady(true)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.health != nil {
		s.health.SetReady(false)
	}
	return s.http.Shutdown(ctx)
}
