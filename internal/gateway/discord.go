package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/georgeshao/discord-relay/pkg/types"
)

const defaultIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsDirectMessages

// discordAPI is the subset of *discordgo.Session used for lookups and sends.
type discordAPI interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordConfig struct {
	Token  string
	Logger *slog.Logger
}

// Discord implements Session and MemberEvents on top of a discordgo session.
type Discord struct {
	session *discordgo.Session
	api     discordAPI
	logger  *slog.Logger

	mu      sync.RWMutex
	onJoin  []func(ctx context.Context, m Member)
	onLeave []func(ctx context.Context, m Member)
}

func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord: token is required")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	session, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = defaultIntents

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &Discord{
		session: session,
		api:     session,
		logger:  logger,
	}

	session.AddHandler(d.handleReady)
	session.AddHandler(d.handleMemberAdd)
	session.AddHandler(d.handleMemberRemove)

	return d, nil
}

// Open connects the websocket. It returns once the handshake completes;
// events are delivered until Close.
func (d *Discord) Open() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	return nil
}

func (d *Discord) Close() error {
	return d.session.Close()
}

func (d *Discord) Connected() bool {
	return d.session.DataReady
}

func (d *Discord) FetchChannel(ctx context.Context, id string) (*Handle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("channel %q: %w", id, ErrNotFound)
	}
	ch, err := d.api.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch channel %s: %w", id, err)
	}
	return &Handle{Kind: types.KindChannel, ID: ch.ID, Name: ch.Name}, nil
}

func (d *Discord) FetchUser(ctx context.Context, id string) (*Handle, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	u, err := d.api.User(id, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &Handle{Kind: types.KindUser, ID: u.ID, Name: u.Username}, nil
}

func (d *Discord) Send(ctx context.Context, h *Handle, msg Outbound) error {
	if h == nil {
		return errors.New("send: nil destination")
	}

	channelID := h.ID
	if h.Kind == types.KindUser {
		dm, err := d.api.UserChannelCreate(h.ID, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("open dm with %s: %w", h.ID, err)
		}
		channelID = dm.ID
	}

	if _, err := d.api.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send to %s %s: %w", h.Kind, h.ID, err)
	}
	return nil
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID, text string) error {
	return d.Send(ctx, &Handle{Kind: types.KindUser, ID: userID}, Outbound{Text: text})
}

func (d *Discord) OnMemberJoin(fn func(ctx context.Context, m Member)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onJoin = append(d.onJoin, fn)
}

func (d *Discord) OnMemberLeave(fn func(ctx context.Context, m Member)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onLeave = append(d.onLeave, fn)
}

func (d *Discord) handleReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		d.logger.Info("discord bot connected", "user", r.User.String(), "guilds", len(r.Guilds))
	}
}

func (d *Discord) handleMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	m, ok := memberFrom(e.Member)
	if !ok {
		return
	}
	d.mu.RLock()
	handlers := d.onJoin
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(context.Background(), m)
	}
}

func (d *Discord) handleMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	m, ok := memberFrom(e.Member)
	if !ok {
		return
	}
	d.mu.RLock()
	handlers := d.onLeave
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(context.Background(), m)
	}
}

func memberFrom(m *discordgo.Member) (Member, bool) {
	if m == nil || m.User == nil {
		return Member{}, false
	}
	return Member{
		UserID:   m.User.ID,
		Username: m.User.Username,
		GuildID:  m.GuildID,
	}, true
}

func toMessageSend(msg Outbound) *discordgo.MessageSend {
	send := &discordgo.MessageSend{Content: msg.Text}
	if len(msg.Attachments) == 0 {
		return send
	}
	send.Files = make([]*discordgo.File, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		send.Files = append(send.Files, &discordgo.File{
			Name:        a.Name,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(a.Data),
		})
	}
	return send
}

// isNotFound reports whether err is Discord's answer for an unknown
// channel or user. Malformed snowflakes come back as form body errors.
func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownUser:
			return true
		case discordgo.ErrCodeInvalidFormBody:
			return restErr.Response != nil && restErr.Response.StatusCode == http.StatusBadRequest
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
