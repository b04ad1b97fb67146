// Package httpapi serves the relay's HTTP surface: health, metrics and the WebSocket entry point.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wtask/relay/internal/relay"
)

// Relay - relay server state exposed by the health endpoint.
type Relay interface {
	State() relay.State
	SessionCount() int
}

// Server - echo based HTTP server.
type Server struct {
	echo    *echo.Echo
	relay   Relay
	version string
	logger  *slog.Logger
}

// HealthResponse - body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	State    string `json:"state"`
	Sessions int    `json:"sessions"`
	Version  string `json:"version"`
}

// NewServer - builds HTTP server. ws handles GET /ws and may be nil to disable WebSocket clients.
func NewServer(r Relay, ws http.Handler, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		relay:   r,
		version: version,
		logger:  logger,
	}
	s.registerRoutes(ws)
	return s
}

func (s *Server) registerRoutes(ws http.Handler) {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if ws != nil {
		s.echo.GET("/ws", echo.WrapHandler(ws))
	}
}

// Handler - underlying http.Handler, handy for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	state := s.relay.State()
	resp := HealthResponse{
		Status:   "ok",
		State:    state.String(),
		Sessions: s.relay.SessionCount(),
		Version:  s.version,
	}
	code := http.StatusOK
	if state != relay.StateListening {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

// Serve - serves HTTP on the listener until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.echo.Listener = l
	s.logger.Info("HTTP server started", "addr", l.Addr().String())
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start - binds addr and serves HTTP until Shutdown.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown - gracefully stops HTTP server within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
