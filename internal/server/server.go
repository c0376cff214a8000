// Package server exposes ingestion runs over HTTP for push-style triggers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cyderes/activity-ingestion-service/internal/config"
	"github.com/cyderes/activity-ingestion-service/internal/ingesterr"
	"github.com/cyderes/activity-ingestion-service/internal/ingestion"
	"github.com/cyderes/activity-ingestion-service/internal/models"
)

// Runner executes ingestion runs and reports the latest status.
type Runner interface {
	Run(ctx context.Context, mode models.RunMode) (*ingestion.RunResult, error)
	Status(ctx context.Context) (*models.IngestionStatus, error)
}

// Server handles HTTP requests
type Server struct {
	config config.ServerConfig
	runner Runner
	echo   *echo.Echo
	logger *zap.Logger

	// running admits one run per process at a time.
	running sync.Mutex
}

// PushEnvelope is the body of a Pub/Sub push delivery.
type PushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewServer creates a new HTTP server registering its metrics with the
// default Prometheus registry.
func NewServer(cfg config.ServerConfig, runner Runner, logger *zap.Logger) *Server {
	return newServer(cfg, runner, prometheus.DefaultRegisterer, prometheus.DefaultGatherer, logger)
}

func newServer(cfg config.ServerConfig, runner Runner, reg prometheus.Registerer, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	s := &Server{
		config: cfg,
		runner: runner,
		logger: logger.With(zap.String("component", "server")),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = 15 * time.Second

	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "activity_ingestion",
		Subsystem:  "http",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.POST("/", s.handlePush)
	e.POST("/run", s.handleRun)

	s.echo = e
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting HTTP server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET requests for ingestion status
func (s *Server) handleStatus(c echo.Context) error {
	status, err := s.runner.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("failed to retrieve status: %v", err)})
	}
	return c.JSON(http.StatusOK, status)
}

// handlePush runs an ingestion for a Pub/Sub push delivery. The message data
// carries the base64-encoded run mode.
func (s *Server) handlePush(c echo.Context) error {
	var envelope PushEnvelope
	if err := c.Bind(&envelope); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid push envelope", Kind: string(ingesterr.KindInvalidTrigger)})
	}

	mode, err := models.ParseTrigger(envelope.Message.Data)
	if err != nil {
		return s.respondError(c, err)
	}

	s.logger.Info("received push trigger",
		zap.String("message_id", envelope.Message.MessageID),
		zap.String("subscription", envelope.Subscription),
		zap.String("mode", string(mode)))
	return s.run(c, mode)
}

// handleRun runs an ingestion for mode given as a query parameter.
func (s *Server) handleRun(c echo.Context) error {
	mode, err := models.ParseMode(c.QueryParam("mode"))
	if err != nil {
		return s.respondError(c, err)
	}
	return s.run(c, mode)
}

func (s *Server) run(c echo.Context, mode models.RunMode) error {
	if !s.running.TryLock() {
		s.logger.Warn("rejecting trigger while a run is in progress", zap.String("mode", string(mode)))
		return c.JSON(http.StatusConflict, errorResponse{Error: "an ingestion run is already in progress"})
	}
	defer s.running.Unlock()

	// A disconnecting client must not abort a run halfway through.
	ctx := context.WithoutCancel(c.Request().Context())

	result, err := s.runner.Run(ctx, mode)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) respondError(c echo.Context, err error) error {
	kind := ingesterr.KindOf(err)
	code := http.StatusInternalServerError
	if kind == ingesterr.KindInvalidTrigger {
		code = http.StatusBadRequest
	}
	return c.JSON(code, errorResponse{Error: err.Error(), Kind: string(kind)})
}
