// Package api serves generation over HTTP: POST endpoints for generate and
// refine, plus provider status, health and metrics for operators.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/curriculumgen/internal/llm"
	"github.com/ajitpratap0/curriculumgen/internal/metrics"
	"github.com/ajitpratap0/curriculumgen/internal/refine"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// Server represents the REST API server
type Server struct {
	router    *gin.Engine
	generator llm.Generator
	refiner   *refine.Refiner
	breakers  metrics.StatusSource
	guards    metrics.GuardSource
	version   string
	timeout   time.Duration
	addr      string
	server    *http.Server
}

// Config contains server configuration
type Config struct {
	Host      string
	Port      int
	Version   string
	Generator llm.Generator
	Breakers  metrics.StatusSource // optional
	Guards    metrics.GuardSource  // optional

	// RequestTimeout bounds one generate or refine call. Default 5m.
	RequestTimeout time.Duration
}

// NewServer creates a new API server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Minute
	}

	server := &Server{
		router:    router,
		generator: config.Generator,
		refiner:   refine.New(config.Generator),
		breakers:  config.Breakers,
		guards:    config.Guards,
		version:   config.Version,
		timeout:   config.RequestTimeout,
		addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	server.server = &http.Server{
		Addr:         server.addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server.setupRoutes()

	return server
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	return nil
}

// RequestIDMiddleware takes the request ID from the X-Request-ID header or
// generates one, and echoes it in the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(llm.WithRequestID(c.Request.Context(), id))

		c.Next()
	}
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logEvent := log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id"))

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
