package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newschat/app/config"
	"newschat/app/service/engine"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

const requestTimeout = 60 * time.Second

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var _ do.Shutdownable = (*Server)(nil)

// Server is the HTTP boundary. It translates engine results and errors
// into status codes and keeps no state of its own.
type Server struct {
	cfg       *config.Config
	engineSvc *engine.Service
	app       *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:       do.MustInvoke[*config.Config](di),
		engineSvc: do.MustInvoke[*engine.Service](di),
	}

	app := fiber.New(fiber.Config{
		AppName:               "newschat",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())

	if s.cfg.Server.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        s.cfg.Server.RateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{
					Error: "Too many requests, please slow down.",
					Code:  "RATE_LIMITED",
				})
			},
		}))
	}

	app.Use(s.requireConfigured)

	group := app.Group("/api")
	group.Post("/chat", s.handleChat)
	group.Get("/conversation/:id", s.handleConversation)
	group.Get("/status", s.handleStatus)

	s.app = app

	return s, nil
}

// Run blocks until the listener fails or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
			slog.Warn("HTTP shutdown failed", "error", err)
		}
	}()

	slog.Info("HTTP server listening", "addr", s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// requireConfigured rejects all API traffic until both provider keys
// are present, mirroring what the engine would fail on anyway.
func (s *Server) requireConfigured(c *fiber.Ctx) error {
	if !s.cfg.Configured() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(errorResponse{
			Error: "Service is not configured yet, provider credentials are missing.",
			Code:  "NOT_CONFIGURED",
		})
	}

	return c.Next()
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Error: "Request body must be JSON with a message field.",
			Code:  "BAD_REQUEST",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), requestTimeout)
	defer cancel()

	reply, err := s.engineSvc.HandleMessage(ctx, req.Message, req.ConversationID)
	if err != nil {
		if errors.Is(err, engine.ErrEmptyMessage) {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
				Error: "Message is required and must be a non-empty string.",
				Code:  "BAD_REQUEST",
			})
		}

		slog.Error("Chat handling failed", "error", err)

		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Error: "I apologize, but I encountered an unexpected issue. Please try again.",
			Code:  "INTERNAL_ERROR",
		})
	}

	return c.JSON(reply)
}

func (s *Server) handleConversation(c *fiber.Ctx) error {
	turns, err := s.engineSvc.GetHistory(c.Params("id"))
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(errorResponse{
				Error: "Conversation not found.",
				Code:  "NOT_FOUND",
			})
		}

		return err
	}

	return c.JSON(fiber.Map{
		"conversationId": c.Params("id"),
		"messages":       turns,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.engineSvc.Status())
}

// errorHandler is the outermost boundary: anything that escapes a
// handler becomes a stable JSON apology instead of a fiber error page.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
		return c.Status(fiberErr.Code).JSON(errorResponse{
			Error: fiberErr.Message,
			Code:  "BAD_REQUEST",
		})
	}

	slog.Error("Unhandled API error", "error", err)

	return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
		Error: "I apologize, but I encountered an unexpected issue. Please try again.",
		Code:  "INTERNAL_ERROR",
	})
}
