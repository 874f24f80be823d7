package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/discord-relay/internal/dispatcher"
	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/internal/storage"
)

func SetupRoutes(app *fiber.App, d *dispatcher.Dispatcher, session gateway.Session, store storage.Store, logger *slog.Logger) {
	h := NewHandler(d, session, store, logger)

	app.Post("/send-message", h.SendMessage)
	app.Post("/send-dm", h.SendDM)

	app.Get("/dispatches", h.ListDispatches)
	app.Get("/dispatches/stats", h.GetDispatchStats)
	app.Get("/dispatches/:id", h.GetDispatch)

	app.Get("/health", h.Health)
}
