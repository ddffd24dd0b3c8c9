// Package http provides the local control surface for minuted.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/minutedhq/minuted/internal/approval"
	"github.com/minutedhq/minuted/internal/backend"
	"github.com/minutedhq/minuted/internal/capture"
	"github.com/minutedhq/minuted/internal/extraction"
)

// SessionController drives the capture pipeline lifecycle. Satisfied by
// *capture.Session.
type SessionController interface {
	Start(ctx context.Context, meetingID string) error
	Stop(ctx context.Context) error
	State() capture.SessionState
	MeetingID() string
}

// ApprovalQueue is the moderator surface of the approval queue.
// Satisfied by *approval.Queue.
type ApprovalQueue interface {
	List() []backend.PendingApprovalBatch
	Active() *backend.PendingApprovalBatch
	Len() int
	Resync(ctx context.Context) error
	Snooze() time.Time
	Approve(ctx context.Context, pendingID string, taskIndex int) error
	Reject(ctx context.Context, pendingID string, taskIndex int, reason string) error
	ApproveAll(ctx context.Context, pendingID string, edits []backend.TaskEdit) error
	RejectAll(ctx context.Context, pendingID string, reason string) error
}

// BufferStats exposes extraction buffer state for the status endpoint.
// Satisfied by *extraction.Buffer.
type BufferStats interface {
	Stats() extraction.Stats
}

var _ SessionController = (*capture.Session)(nil)
var _ ApprovalQueue = (*approval.Queue)(nil)
var _ BufferStats = (*extraction.Buffer)(nil)

// Server provides HTTP endpoints for minuted.
type Server struct {
	echo    *echo.Echo
	session SessionController
	queue   ApprovalQueue
	stats   BufferStats
	metrics *HTTPMetrics
	logger  *zap.Logger
	config  *Config

	ready atomic.Bool
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration

	// Version is reported by GET /v1/status.
	Version string

	// Services names the configured downstream providers, reported
	// verbatim by GET /v1/status (e.g. "stt": "deepgram").
	Services map[string]string
}

const defaultShutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithHTTPMetrics attaches request metrics middleware.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBufferStats exposes extraction buffer state on /v1/status.
func WithBufferStats(bs BufferStats) Option {
	return func(s *Server) {
		s.stats = bs
	}
}

// NewServer creates a new HTTP server.
func NewServer(session SessionController, queue ApprovalQueue, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if session == nil {
		return nil, fmt.Errorf("session controller cannot be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("approval queue cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		session: session,
		queue:   queue,
		logger:  logger,
		config:  cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
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

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/readyz", s.handleReady)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/session/start", s.handleSessionStart)
	v1.POST("/session/stop", s.handleSessionStop)
	v1.GET("/approvals", s.handleApprovals)
	v1.POST("/approvals/resync", s.handleResync)
	v1.POST("/approvals/snooze", s.handleSnooze)
	v1.POST("/approvals/:id/approve", s.handleApproveAll)
	v1.POST("/approvals/:id/reject", s.handleRejectAll)
	v1.POST("/approvals/:id/tasks/:index/approve", s.handleApproveTask)
	v1.POST("/approvals/:id/tasks/:index/reject", s.handleRejectTask)
}

// SetReady flips the readiness state reported by GET /readyz. The daemon
// calls this once all components are wired and the syncer is running.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Echo returns the underlying router for additional route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// handleHealth returns a simple liveness response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady reports readiness once the daemon finished wiring.
func (s *Server) handleReady(c echo.Context) error {
	if !s.ready.Load() {
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "starting"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ready"})
}

// handleStatus reports daemon, session, and approval state.
func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{
		Status:   "ok",
		Version:  s.config.Version,
		Services: s.config.Services,
		Session: SessionStatus{
			State:     string(s.session.State()),
			MeetingID: s.session.MeetingID(),
		},
		Approvals: ApprovalsStatus{
			Pending: s.queue.Len(),
		},
	}
	if active := s.queue.Active(); active != nil {
		resp.Approvals.ActivePendingID = active.PendingID
	}
	if s.stats != nil {
		st := s.stats.Stats()
		resp.Extraction = &st
	}
	return c.JSON(http.StatusOK, resp)
}

// handleSessionStart begins capturing the given meeting.
func (s *Server) handleSessionStart(c echo.Context) error {
	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid session start request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.MeetingID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "meetingId field is required")
	}

	if err := s.session.Start(c.Request().Context(), req.MeetingID); err != nil {
		if errors.Is(err, capture.ErrSessionActive) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		s.logger.Error("session start failed", zap.String("meeting_id", req.MeetingID), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, SessionResponse{
		State:     string(s.session.State()),
		MeetingID: req.MeetingID,
	})
}

// handleSessionStop ends the running capture.
func (s *Server) handleSessionStop(c echo.Context) error {
	if err := s.session.Stop(c.Request().Context()); err != nil {
		if errors.Is(err, capture.ErrSessionIdle) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		s.logger.Error("session stop failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, SessionResponse{
		State: string(s.session.State()),
	})
}

// handleApprovals lists pending approval batches, newest first.
func (s *Server) handleApprovals(c echo.Context) error {
	return c.JSON(http.StatusOK, ApprovalsResponse{
		Approvals: s.queue.List(),
		Active:    s.queue.Active(),
	})
}

// handleResync re-fetches pending approvals from the backend.
func (s *Server) handleResync(c echo.Context) error {
	if err := s.queue.Resync(c.Request().Context()); err != nil {
		s.logger.Error("approval resync failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ResyncResponse{Status: "ok", Pending: s.queue.Len()})
}

// handleSnooze hides the active batch for the configured window.
func (s *Server) handleSnooze(c echo.Context) error {
	until := s.queue.Snooze()
	return c.JSON(http.StatusOK, SnoozeResponse{SnoozedUntil: until})
}

// handleApproveTask approves one task of a batch.
func (s *Server) handleApproveTask(c echo.Context) error {
	index, err := taskIndex(c)
	if err != nil {
		return err
	}

	if err := s.queue.Approve(c.Request().Context(), c.Param("id"), index); err != nil {
		s.logger.Error("task approve failed", zap.String("pending_id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ActionResponse{Status: "ok"})
}

// handleRejectTask rejects one task of a batch.
func (s *Server) handleRejectTask(c echo.Context) error {
	index, err := taskIndex(c)
	if err != nil {
		return err
	}

	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.queue.Reject(c.Request().Context(), c.Param("id"), index, req.Reason); err != nil {
		s.logger.Error("task reject failed", zap.String("pending_id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ActionResponse{Status: "ok"})
}

// handleApproveAll approves every task of a batch, with optional edits.
func (s *Server) handleApproveAll(c echo.Context) error {
	var req ApproveAllRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.queue.ApproveAll(c.Request().Context(), c.Param("id"), req.Edits); err != nil {
		s.logger.Error("batch approve failed", zap.String("pending_id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ActionResponse{Status: "ok"})
}

// handleRejectAll rejects every task of a batch.
func (s *Server) handleRejectAll(c echo.Context) error {
	var req RejectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := s.queue.RejectAll(c.Request().Context(), c.Param("id"), req.Reason); err != nil {
		s.logger.Error("batch reject failed", zap.String("pending_id", c.Param("id")), zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, ActionResponse{Status: "ok"})
}

// taskIndex parses the :index path parameter.
func taskIndex(c echo.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "task index must be a non-negative integer")
	}
	return index, nil
}

// Start starts the HTTP server and blocks until ctx is cancelled.
//
// Returns http.ErrServerClosed after a graceful shutdown, or the startup
// error if the listener could not be established.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down http server")
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Shutdown gracefully shuts down the server. Prefer cancelling the Start
// context; Shutdown exists for callers managing the lifecycle directly.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
