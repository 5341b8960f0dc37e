// Package http provides the HTTP API for askd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/askd/internal/agent"
	"github.com/fyrsmithlabs/askd/internal/document"
	"github.com/fyrsmithlabs/askd/internal/ingest"
	"github.com/fyrsmithlabs/askd/internal/source"
)

// QueryAgent answers natural-language queries.
type QueryAgent interface {
	Query(ctx context.Context, text string) (agent.Answer, error)
}

// Syncer pulls documents from the configured sources into the store.
type Syncer interface {
	SyncSource(ctx context.Context, name string, scope string, refresh bool) (ingest.Summary, error)
	Status(ctx context.Context) (ingest.Status, error)
}

// IssueCreator executes create-issue actions proposed by the agent.
type IssueCreator interface {
	CreateIssue(ctx context.Context, r source.CreateIssueRequest) (document.RawIssue, error)
}

// Server provides HTTP endpoints for askd.
type Server struct {
	echo    *echo.Echo
	agent   QueryAgent
	syncer  Syncer
	issues  IssueCreator
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. issues may be nil when no issue
// tracker is configured; the create-issue endpoint then returns 503.
func NewServer(qa QueryAgent, syncer Syncer, issues IssueCreator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if qa == nil {
		return nil, fmt.Errorf("query agent cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8420,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		agent:   qa,
		syncer:  syncer,
		issues:  issues,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/ingest/:source", s.handleIngest)
	v1.GET("/status", s.handleStatus)
	v1.POST("/issues", s.handleCreateIssue)
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// ErrorResponse is returned for all failed requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateIssueRequest is the request body for POST /api/v1/issues.
type CreateIssueRequest struct {
	Project     string `json:"project"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	IssueType   string `json:"issue_type,omitempty"`
}

// CreateIssueResponse is the response body for POST /api/v1/issues.
type CreateIssueResponse struct {
	Key     string `json:"key"`
	Summary string `json:"summary"`
	URL     string `json:"url,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleQuery runs one query through the agent. Provider failures map
// to 502 with the reason so callers see why the answer is unavailable.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid query request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	answer, err := s.agent.Query(c.Request().Context(), req.Query)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyQuery) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query field is required"})
		}
		s.logger.Error("query failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:  "unable to answer",
			Reason: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, answer)
}

// handleIngest triggers one ingestion cycle for the named source.
// The refresh query parameter evicts documents missing upstream; scope
// overrides the configured project key or space key.
func (s *Server) handleIngest(c echo.Context) error {
	name := c.Param("source")
	scope := c.QueryParam("scope")
	refresh := c.QueryParam("refresh") == "true"

	summary, err := s.syncer.SyncSource(c.Request().Context(), name, scope, refresh)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnknownSource):
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("unknown source %q", name)})
		case errors.Is(err, ingest.ErrSourceNotConfigured):
			return c.JSON(http.StatusConflict, ErrorResponse{Error: fmt.Sprintf("source %q is not configured", name)})
		default:
			s.logger.Error("ingest failed", zap.String("source", name), zap.Error(err))
			return c.JSON(http.StatusBadGateway, ErrorResponse{
				Error:  "ingest failed",
				Reason: err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleStatus(c echo.Context) error {
	status, err := s.syncer.Status(c.Request().Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:  "status unavailable",
			Reason: err.Error(),
		})
	}
	return c.JSON(http.StatusOK, status)
}

// handleCreateIssue executes a create-issue action. The agent only
// proposes actions; this endpoint is where the side effect happens.
func (s *Server) handleCreateIssue(c echo.Context) error {
	if s.issues == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "issue tracker is not configured"})
	}

	var req CreateIssueRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create issue request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if req.Project == "" || req.Summary == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "project and summary fields are required"})
	}

	raw, err := s.issues.CreateIssue(c.Request().Context(), source.CreateIssueRequest{
		Project:     req.Project,
		Summary:     req.Summary,
		Description: req.Description,
		IssueType:   req.IssueType,
	})
	if err != nil {
		if errors.Is(err, source.ErrInvalidConfig) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		}
		s.logger.Error("create issue failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:  "issue creation failed",
			Reason: err.Error(),
		})
	}

	summary := ""
	if raw.Summary != nil {
		summary = *raw.Summary
	}
	return c.JSON(http.StatusCreated, CreateIssueResponse{
		Key:     raw.Key,
		Summary: summary,
		URL:     raw.URL,
	})
}

// Start starts the HTTP server.
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
