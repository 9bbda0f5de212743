package app

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
)

// ChannelStore is the registry plus the administrative channel mutations the
// control plane needs.
type ChannelStore interface {
	Registry
	UpsertChannel(ctx context.Context, ch Channel) error
	DeleteChannel(ctx context.Context, name string) (bool, error)
}

// Server is the admin REST surface. It runs alongside the scheduler loop;
// manual triggers go through the runner's non-blocking lock so they can never
// overlap a scheduled cycle.
type Server struct {
	Store    ChannelStore
	Ledger   Ledger
	Runner   *Runner
	Stats    *StatsService
	Notifier Notifier

	app *fiber.App
}

func NewServer(store ChannelStore, ledger Ledger, runner *Runner, stats *StatsService, notifier Notifier) *Server {
	s := &Server{
		Store:    store,
		Ledger:   ledger,
		Runner:   runner,
		Stats:    stats,
		Notifier: notifier,
	}

	app := fiber.New(fiber.Config{AppName: "clipcast"})
	app.Use(recover.New())

	app.Get("/health", s.handleHealth)
	app.Get("/status", s.handleStatus)
	app.Get("/stats", s.handleStats)

	app.Get("/channels", s.handleListChannels)
	app.Get("/channel/:name", s.handleGetChannel)
	app.Post("/channel", s.handleUpsertChannel)
	app.Delete("/channel/:name", s.handleDeleteChannel)

	app.Post("/run/all", s.handleRunAll)
	app.Post("/run/channel/:name", s.handleRunChannel)
	app.Post("/history/reset", s.handleResetHistory)
	app.Post("/notify", s.handleNotify)

	s.app = app
	return s
}

// Listen serves the API until Shutdown is called.
func (s *Server) Listen(addr string) error {
	log.Printf("Admin API listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c fiber.Ctx) error {
	return c.JSON(s.Runner.Status())
}

func (s *Server) handleStats(c fiber.Ctx) error {
	stats, err := s.Stats.AllStats(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(stats)
}

func (s *Server) handleListChannels(c fiber.Ctx) error {
	channels, err := s.Store.ListChannels(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(sanitizeChannels(channels))
}

func (s *Server) handleGetChannel(c fiber.Ctx) error {
	ch, err := s.Store.GetChannel(c.Context(), c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if ch == nil {
		return fiber.NewError(fiber.StatusNotFound, "channel not found")
	}
	return c.JSON(sanitizeChannel(*ch))
}

func (s *Server) handleUpsertChannel(c fiber.Ctx) error {
	var ch Channel
	if err := c.Bind().JSON(&ch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid channel payload")
	}
	if ch.ChannelName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "channel_name is required")
	}
	if ch.Mode != ModeSource && ch.Mode != ModeGenerated {
		return fiber.NewError(fiber.StatusBadRequest, "mode must be source or generated")
	}
	if err := s.Store.UpsertChannel(c.Context(), ch); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"channel_name": ch.ChannelName})
}

func (s *Server) handleDeleteChannel(c fiber.Ctx) error {
	deleted, err := s.Store.DeleteChannel(c.Context(), c.Params("name"))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return fiber.NewError(fiber.StatusNotFound, "channel not found")
	}
	return c.JSON(fiber.Map{"deleted": c.Params("name")})
}

func (s *Server) handleRunAll(c fiber.Ctx) error {
	if err := s.Runner.TriggerCycle(c.Context()); err != nil {
		return triggerError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": "cycle"})
}

func (s *Server) handleRunChannel(c fiber.Ctx) error {
	name := c.Params("name")
	if err := s.Runner.TriggerChannel(c.Context(), name); err != nil {
		return triggerError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": name})
}

func (s *Server) handleResetHistory(c fiber.Ctx) error {
	name := fiber.Query[string](c, "channel")
	if err := s.Ledger.Reset(c.Context(), name); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	scope := name
	if scope == "" {
		scope = "all channels"
	}
	log.Printf("Upload history reset for %s", scope)
	return c.JSON(fiber.Map{"reset": scope})
}

func (s *Server) handleNotify(c fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.Bind().JSON(&req); err != nil || req.Message == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message is required")
	}
	s.Notifier.Notify(c.Context(), req.Message)
	return c.JSON(fiber.Map{"sent": true})
}

// triggerError maps runner errors to HTTP status codes. An in-flight cycle is
// a 429 so callers know to retry rather than a hard failure.
func triggerError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, ErrUnknownChannel):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// sanitizeChannel strips credentials from API responses.
func sanitizeChannel(ch Channel) Channel {
	ch.Password = ""
	return ch
}

func sanitizeChannels(channels []Channel) []Channel {
	out := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, sanitizeChannel(ch))
	}
	return out
}
