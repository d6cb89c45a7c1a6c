// Package web serves the undock request interface: trigger and cancel
// calls, status queries, a websocket status stream and Prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-undock/pkg/hub"
	"github.com/teslashibe/go-undock/pkg/undock"
)

const shutdownTimeout = 5 * time.Second

// Controller is the part of the sequencer the request interface drives.
type Controller interface {
	RequestUndock() undock.Ack
	Cancel() undock.Ack
	Snapshot() undock.Snapshot
}

// Server is the undock HTTP server
type Server struct {
	app       *fiber.App
	addr      string
	ctrl      Controller
	statusHub *hub.Hub
	logger    *slog.Logger
}

// NewServer creates the server. Reports broadcast on statusHub reach
// /ws/status watchers; gatherer backs /metrics and defaults to the
// Prometheus default registry.
func NewServer(addr string, ctrl Controller, statusHub *hub.Hub, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		addr:      addr,
		ctrl:      ctrl,
		statusHub: statusHub,
		logger:    logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "undockd",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} ${method} ${path} ${latency}\n",
		Output: accessLog{logger},
	}))

	api := app.Group("/api/undock")
	api.Post("/trigger", s.handleTrigger)
	api.Post("/cancel", s.handleCancel)
	api.Get("/status", s.handleStatus)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the status hub and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("http shutdown", "error", err)
		}
	}()

	s.logger.Info("request interface listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// handleTrigger requests an undock run
func (s *Server) handleTrigger(c *fiber.Ctx) error {
	ack := s.ctrl.RequestUndock()
	s.logger.Info("undock requested", "message", ack.Message)
	return c.JSON(ack)
}

// handleCancel requests cancellation of the current run
func (s *Server) handleCancel(c *fiber.Ctx) error {
	ack := s.ctrl.Cancel()
	s.logger.Info("undock cancel requested", "message", ack.Message)
	return c.JSON(ack)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Snapshot())
}

// handleStatusWS streams status reports until the watcher disconnects
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}

// accessLog adapts the fiber access log to slog at debug level.
type accessLog struct {
	logger *slog.Logger
}

func (a accessLog) Write(p []byte) (int, error) {
	a.logger.Debug("http", "request", strings.TrimSpace(string(p)))
	return len(p), nil
}
