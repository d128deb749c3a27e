package manager

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/oshokin/update-manager/internal/domain/update"
	"github.com/oshokin/update-manager/internal/logger"
	"github.com/oshokin/update-manager/internal/metrics"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Trigger(ctx context.Context) error
	Status(ctx context.Context) *domain.Record
}

// Server implements the sidecar HTTP API.
//
// Endpoints:
//
//	GET  /health   liveness probe, no auth
//	GET  /status   current update record as JSON, no auth
//	POST /update   trigger an update, bearer auth required
//	GET  /metrics  Prometheus exposition, no auth
//
// Anything else is a 404.
type Server struct {
	// service provides the business logic for update operations.
	service Service
	// secret is the shared bearer secret. An empty secret rejects every
	// update request: the sidecar runs, but triggering is disabled.
	secret string
}

// bearerPrefix is the expected Authorization scheme.
const bearerPrefix = "Bearer "

// NewServer wires the provided service implementation into an HTTP handler.
func NewServer(service Service, secret string) *Server {
	return &Server{
		service: service,
		secret:  secret,
	}
}

// Handler returns the gin-powered http.Handler for the API.
func (s *Server) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestLogger())

	g.GET("/health", s.handleHealth)
	g.GET("/status", s.handleStatus)
	g.POST("/update", s.requireAuth, s.handleUpdate)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	return g
}

// handleHealth answers the liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleStatus reports the current update record.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Status(c.Request.Context()))
}

// handleUpdate triggers the two-phase pipeline. The call returns as soon as
// the background task is started; the outcome is visible via /status.
func (s *Server) handleUpdate(c *gin.Context) {
	err := s.service.Trigger(c.Request.Context())

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	case errors.Is(err, domain.ErrAlreadyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Update already in progress"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// requireAuth checks the bearer secret. An unset secret never matches.
func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")

	if s.secret == "" || !validBearer(header, s.secret) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})

		return
	}

	c.Next()
}

// validBearer compares the Authorization header against the secret in
// constant time.
func validBearer(header, secret string) bool {
	if !strings.HasPrefix(header, bearerPrefix) {
		return false
	}

	token := strings.TrimPrefix(header, bearerPrefix)

	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// requestLogger logs each request through the context logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.InfoKV(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
