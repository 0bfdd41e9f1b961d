package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-notify-gateway/internal/gateway"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
)

// Config controls the HTTP listener.
type Config struct {
	AppName     string
	ReadTimeout time.Duration
}

// Server exposes the gateway pipeline over HTTP.
type Server struct {
	app     *fiber.App
	gateway *gateway.Service
	logger  logger.Logger
}

// New builds the fiber app and registers routes.
func New(cfg Config, gw *gateway.Service, log logger.Logger) *Server {
	if log == nil {
		log = &logger.Nop{}
	}
	if cfg.AppName == "" {
		cfg.AppName = "notify-gateway"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}

	s := &Server{
		gateway: gw,
		logger:  log.With(logger.Field{Key: "component", Value: "server"}),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		ReadTimeout:           cfg.ReadTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthcheck", s.Healthcheck)

	v2 := s.app.Group("/v2")
	v2.Post("/notifications/sms", s.SendSMS)
	v2.Post("/notifications/email", s.SendEmail)
	v2.Get("/notifications/:id", s.GetNotification)
}

// App exposes the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP on addr.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", logger.Field{Key: "addr", Value: addr})
	return s.app.Listen(addr)
}

// Shutdown drains connections and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return writeError(c, code, "ServerError", err.Error())
}
