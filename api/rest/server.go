// Package rest provides the REST API surface of the rendering engine.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"yqhp/tts-engine/internal/config"
	"yqhp/tts-engine/internal/scheduler"
	"yqhp/tts-engine/internal/sink"
	"yqhp/tts-engine/pkg/metrics"
)

// Server represents the REST API server.
type Server struct {
	app     *fiber.App
	sched   *scheduler.Scheduler
	voices  *config.Voices
	sink    *sink.WAVSink
	reg     *metrics.Registry
	config  config.ServerConfig
	started time.Time
}

// NewServer creates a new REST API server. sink may be nil when the
// server should not report output paths.
func NewServer(cfg config.ServerConfig, sched *scheduler.Scheduler, voices *config.Voices, wavSink *sink.WAVSink, reg *metrics.Registry) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ErrorHandler: customErrorHandler,
		AppName:      "TTS Engine API",
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
	})

	server := &Server{
		app:     app,
		sched:   sched,
		voices:  voices,
		sink:    wavSink,
		reg:     reg,
		config:  cfg,
		started: time.Now(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Recovery middleware - recovers from panics
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	// Logger middleware - logs HTTP requests
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS middleware
	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept,Authorization",
			MaxAge:       86400,
		}))
	}
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Post("/render", s.submitRender)
	api.Get("/status", s.getStatus)
	api.Post("/reset", s.reset)
	api.Get("/metrics", s.getMetrics)
}

// Start starts the REST API server.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext starts the server and shuts it down when the context
// is cancelled.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
