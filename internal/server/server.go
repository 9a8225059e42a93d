// Package server exposes the synchronization engine over HTTP and
// websocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/app"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/platform/config"
	ws "github.com/lassorfeasley/swiper.fit-sub002/internal/websocket"
)

// Pinger is the health-check contract for backing services.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	app      *app.Service
	hub      *ws.Hub
	db       Pinger
	redis    Pinger
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, appSvc *app.Service, hub *ws.Hub, db, redis Pinger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())

	srv := &Server{
		echo:   e,
		config: cfg,
		app:    appSvc,
		hub:    hub,
		db:     db,
		redis:  redis,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
