package server

import (
	"io"

	"github.com/gin-gonic/gin"
)

func (s *Server) setupRoutes() {
	gin.SetMode(s.ginMode)
	s.router = gin.New()

	s.router.Use(gin.LoggerWithWriter(s.accessLogWriter()))
	s.router.Use(gin.Recovery())
	s.router.Use(s.metricsMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())

	// Public routes (no auth)
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/api/stats", s.getStatsData)
	s.router.GET("/api/models", s.listModels)
	s.router.GET("/api/models/:provider/:name", s.getModel)

	api := s.router.Group("/api")
	api.Use(s.rateLimitMiddleware())
	api.Use(s.authenticateClient)
	{
		api.POST("/compare", s.compareModels)
	}
}

// accessLogWriter routes gin's request log through the application logger when it supports it.
func (s *Server) accessLogWriter() io.Writer {
	if src, ok := s.config.Logger.(requestLogSource); ok {
		s.requestLog = src.RequestLogWriter()
		return s.requestLog
	}
	return gin.DefaultWriter
}
