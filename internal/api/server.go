// Package api exposes value history, recent events and event append over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"goladium-analytics/internal/history"
	"goladium-analytics/internal/ingestion"
	"goladium-analytics/internal/observability"
)

// Server wires handlers and middleware into a gin engine.
type Server struct {
	history *history.Service
	writer  *ingestion.Writer
	runner  *ingestion.Runner
	started time.Time
	logger  logrus.FieldLogger
	engine  *gin.Engine
}

// Options configures a Server.
type Options struct {
	History *history.Service
	Writer  *ingestion.Writer // nil disables POST /api/v1/events
	Runner  *ingestion.Runner // nil when ingestion runs elsewhere

	RateLimitRPS   float64       // 0 disables rate limiting
	RateLimitBurst int           // default: 2 * RateLimitRPS
	RequestTimeout time.Duration // default: 10s

	Logger logrus.FieldLogger
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &Server{
		history: opts.History,
		writer:  opts.Writer,
		runner:  opts.Runner,
		started: time.Now(),
		logger:  logger.WithField("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(s.logger), recovery(s.logger), requestTimeout(timeout))

	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := r.Group("/api/v1")
	if opts.RateLimitRPS > 0 {
		v1.Use(newClientLimiter(opts.RateLimitRPS, opts.RateLimitBurst).middleware())
	}
	users := v1.Group("/users/:user_id")
	{
		users.GET("/value-history", s.handleValueHistory)
		users.GET("/events", s.handleRecentEvents)
	}
	if s.writer != nil {
		v1.POST("/events", s.handleAppendEvents)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status    string                 `json:"status"`
	Uptime    string                 `json:"uptime"`
	StartedAt time.Time              `json:"started_at"`
	Ingestion *ingestion.RunnerStats `json:"ingestion,omitempty"`
	Writer    *ingestion.WriterStats `json:"writer,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		StartedAt: s.started,
	}
	if s.runner != nil {
		st := s.runner.Stats()
		resp.Ingestion = &st
	} else if s.writer != nil {
		st := s.writer.Stats()
		resp.Writer = &st
	}
	c.JSON(http.StatusOK, resp)
}
