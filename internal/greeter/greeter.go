// Package greeter sends a direct message to members who join or leave a
// guild.
package greeter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/georgeshao/discord-relay/internal/gateway"
)

const (
	DefaultServerName = "World Time"
	DefaultWelcome    = "👋 ¡Bienvenido a **{server}**, {username}!\n\nEstamos felices de tenerte aquí. Usa los comandos y explora el contenido disponible."
	DefaultFarewell   = "👋 ¡Hasta luego, {username}! Esperamos verte pronto."
)

// Config holds the message templates. Empty fields fall back to the defaults.
type Config struct {
	ServerName string
	Welcome    string
	Farewell   string
}

// DirectMessenger is the session capability the greeter needs.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, userID, text string) error
}

type Greeter struct {
	dm         DirectMessenger
	serverName string
	welcome    string
	farewell   string
	logger     *slog.Logger
}

func New(dm DirectMessenger, cfg Config, logger *slog.Logger) *Greeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Greeter{
		dm:         dm,
		serverName: orDefault(cfg.ServerName, DefaultServerName),
		welcome:    orDefault(cfg.Welcome, DefaultWelcome),
		farewell:   orDefault(cfg.Farewell, DefaultFarewell),
		logger:     logger,
	}
}

// Register subscribes the join and leave handlers.
func (g *Greeter) Register(events gateway.MemberEvents) {
	events.OnMemberJoin(g.HandleJoin)
	events.OnMemberLeave(g.HandleLeave)
}

func (g *Greeter) HandleJoin(ctx context.Context, m gateway.Member) {
	g.greet(ctx, "welcome", g.welcome, m)
}

func (g *Greeter) HandleLeave(ctx context.Context, m gateway.Member) {
	g.greet(ctx, "farewell", g.farewell, m)
}

// Render fills {username} and {server} in tmpl.
func (g *Greeter) Render(tmpl string, m gateway.Member) string {
	return strings.NewReplacer(
		"{username}", m.Username,
		"{server}", g.serverName,
	).Replace(tmpl)
}

// greet never returns an error and never panics. A member with DMs closed
// is the common failure and is only logged.
func (g *Greeter) greet(ctx context.Context, event, tmpl string, m gateway.Member) {
	log := g.logger.With("event", event, "user_id", m.UserID, "guild_id", m.GuildID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("greeter handler panicked", "panic", fmt.Sprint(r))
		}
	}()

	if err := g.dm.SendDirectMessage(ctx, m.UserID, g.Render(tmpl, m)); err != nil {
		log.Warn("could not send "+event+" DM", "error", err)
		return
	}
	log.Debug(event + " DM sent")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
