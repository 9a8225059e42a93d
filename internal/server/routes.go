package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Engine API
	s.echo.POST("/api/attach", s.handleAttach)
	s.echo.POST("/api/detach", s.handleDetach)
	s.echo.POST("/api/sessions/start", s.handleStartSession)
	s.echo.POST("/api/sessions/end", s.handleEndSession)
	s.echo.POST("/api/focus", s.handleSetFocus)
	s.echo.POST("/api/focus/lock", s.handleSetAnimationLock)
	s.echo.GET("/api/state/:ownerID", s.handleState)

	// Live state stream
	s.echo.GET("/ws/:ownerID", s.handleWebSocket)
}
