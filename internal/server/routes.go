package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Real-time stream
	s.echo.GET("/ws", s.gateway.HandleWS)

	// Ingest endpoint for the uploader (API key + IP rate limit, no sessions)
	s.echo.POST("/api/calls", s.handleUpload,
		s.requireAPIKey,
		newRateLimiter(s.config.IngestRatePerSecond, s.config.IngestRateBurst))

	// Uploaded call audio
	s.echo.Static("/audio", s.config.AudioDir)
}
