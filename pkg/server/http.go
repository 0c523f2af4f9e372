package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ozzo "github.com/go-ozzo/ozzo-validation"
	"github.com/kumarabd/gokit/logger"

	"github.com/kumarabd/console-brief/internal/metrics"
	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/pagecontext"
	"github.com/kumarabd/console-brief/pkg/provider"
	"github.com/kumarabd/console-brief/pkg/service"
	"github.com/kumarabd/console-brief/pkg/session"
	"github.com/kumarabd/console-brief/pkg/settings"
)

// HTTPConfig contains configuration for the HTTP server
type HTTPConfig struct {
	Host         string        `json:"host" yaml:"host" default:"0.0.0.0"`
	Port         string        `json:"port" yaml:"port" default:"8080"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" default:"60s"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" default:"60s"`
	AllowOrigins []string      `json:"allow_origins" yaml:"allow_origins"`
}

// HTTP serves the session, capture and brief API.
type HTTP struct {
	handler   *gin.Engine
	service   *service.Handler
	log       *logger.Handler
	metric    *metrics.Handler
	config    *HTTPConfig
	server    *http.Server
	isRunning bool
	mu        sync.RWMutex
}

// NewHTTP creates a new HTTP server instance
func NewHTTP(config *HTTPConfig, svc *service.Handler, l *logger.Handler, m *metrics.Handler) *HTTP {
	gin.SetMode(gin.ReleaseMode)

	server := &HTTP{
		handler: gin.New(),
		service: svc,
		log:     l,
		metric:  m,
		config:  config,
	}

	server.handler.Use(gin.Recovery())
	server.handler.Use(server.loggingMiddleware())
	server.handler.Use(server.corsMiddleware())

	server.setupRoutes()
	return server
}

// Start starts the HTTP server
func (s *HTTP) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server is already running")
	}

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	s.isRunning = true
	srv := s.server
	s.mu.Unlock()

	s.log.Info().Msgf("Starting HTTP server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Error during HTTP server shutdown")
		return err
	}

	s.isRunning = false
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

// IsRunning returns true if the HTTP server is currently running
func (s *HTTP) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *HTTP) GetName() string {
	return "HTTP"
}

// GetHandler returns the gin engine for adding routes
func (s *HTTP) GetHandler() *gin.Engine {
	return s.handler
}

func (s *HTTP) setupRoutes() {
	s.handler.GET("/healthz", s.healthHandler)
	s.handler.GET("/metrics", s.metricsHandler)

	v1 := s.handler.Group("/v1")
	v1.POST("/sessions", s.createSessionHandler)
	v1.DELETE("/sessions/:id", s.deleteSessionHandler)

	sessions := v1.Group("/sessions/:id")
	sessions.POST("/ingest", s.ingestHandler)
	sessions.POST("/logs", s.timed("logs", s.jsonHandler))
	sessions.POST("/otlp", s.timed("otlp", s.otlpHandler))
	sessions.POST("/loki/api/v1/push", s.timed("loki", s.lokiHandler))
	sessions.GET("/report", s.timed("report", s.reportHandler))
	sessions.POST("/report", s.timed("report", s.reportHandler))
	sessions.POST("/context", s.timed("context", s.contextHandler))
	sessions.POST("/brief", s.timed("brief", s.briefHandler))
	sessions.POST("/condense", s.timed("condense", s.condenseHandler))

	v1.GET("/settings", s.getSettingsHandler)
	v1.PUT("/settings", s.putSettingsHandler)
	v1.DELETE("/settings/key", s.clearKeyHandler)
}

// timed records handler latency under route.
func (s *HTTP) timed(route string, fn func(c *gin.Context, start time.Time)) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		fn(c, start)
		if s.metric != nil {
			s.metric.ObserveHandlerLatency(time.Since(start), route, c.Writer.Status() < 400)
		}
	}
}

// getBodyReader returns a reader for the request body, handling gzip decompression if needed
func getBodyReader(r *http.Request) (io.ReadCloser, error) {
	if r.Body == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return gz, nil
	}
	return r.Body, nil
}

// healthHandler handles health check endpoint
func (s *HTTP) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// metricsHandler handles metrics endpoint
func (s *HTTP) metricsHandler(c *gin.Context) {
	s.metric.HTTPHandler().ServeHTTP(c.Writer, c.Request)
}

// loggingMiddleware adds request logging
func (s *HTTP) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.log.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("client_ip", param.ClientIP).
			Str("user_agent", param.Request.UserAgent()).
			Msg("HTTP Request")
		return ""
	})
}

// corsMiddleware allows the page-side logger to post from any configured origin.
func (s *HTTP) corsMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Encoding", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        time.Hour,
	}
	if len(s.config.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.config.AllowOrigins
	}
	return cors.New(config)
}

// fail writes {ok:false,error} with a status derived from err.
func (s *HTTP) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	if s.metric != nil {
		s.metric.IncRequestsReceived(fmt.Sprintf("%d", status))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": err.Error()})
}

func statusFor(err error) int {
	var validation ozzo.Errors
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, ingest.ErrBatchTooLarge), errors.Is(err, ingest.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, capture.ErrPumpStopped), errors.Is(err, capture.ErrEnqueueTimeout):
		return http.StatusServiceUnavailable
	case provider.IsUpstreamError(err):
		return http.StatusBadGateway
	case errors.Is(err, ingest.ErrEmptyBatch),
		errors.Is(err, service.ErrNoLogs),
		errors.Is(err, service.ErrMissingSession),
		errors.Is(err, provider.ErrMissingAPIKey),
		errors.Is(err, provider.ErrUnknownProvider),
		errors.Is(err, settings.ErrEmptyAPIKey),
		errors.Is(err, pagecontext.ErrUnknownStrategy),
		errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// badRequest rejects a malformed body.
func (s *HTTP) badRequest(c *gin.Context, reason string, err error) {
	if s.metric != nil {
		s.metric.IncIngestRejectedTotal(reason)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
}
