package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ajitpratap0/curriculumgen/internal/metrics"
)

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleGetHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/v1")
	{
		v1.GET("/providers", s.handleListProviders)
		v1.POST("/generate", s.handleGenerate)
		v1.POST("/refine", s.handleRefine)
	}
}
