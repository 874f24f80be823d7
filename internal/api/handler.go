package api

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/discord-relay/internal/dispatcher"
	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

const (
	errInvalidBody       = "Cuerpo de solicitud inválido"
	errInvalidAttachment = "Archivo adjunto inválido"
	errInvalidFilter     = "Filtro inválido"
	errInvalidCursor     = "Cursor inválido"
	errStoreDisabled     = "Registro de envíos deshabilitado"
	errDispatchNotFound  = "Envío no encontrado"
	errStoreFailure      = "Error al consultar envíos"
)

// sendRoute holds what differs between POST /send-message and POST /send-dm.
type sendRoute struct {
	kind     types.DestinationKind
	sent     string
	notFound string
	failed   string
}

var (
	channelRoute = sendRoute{
		kind:     types.KindChannel,
		sent:     "Mensaje enviado",
		notFound: "Canal no encontrado",
		failed:   "Error al enviar mensaje",
	}
	userRoute = sendRoute{
		kind:     types.KindUser,
		sent:     "DM enviado",
		notFound: "Usuario no encontrado",
		failed:   "Error al enviar DM",
	}
)

type Handler struct {
	dispatcher *dispatcher.Dispatcher
	session    gateway.Session
	store      storage.Store
	logger     *slog.Logger
}

// NewHandler builds the HTTP handlers. store may be nil, in which case the
// /dispatches endpoints answer 404.
func NewHandler(d *dispatcher.Dispatcher, session gateway.Session, store storage.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dispatcher: d,
		session:    session,
		store:      store,
		logger:     logger,
	}
}

// SendMessage handles POST /send-message
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	return h.send(c, channelRoute)
}

// SendDM handles POST /send-dm
func (h *Handler) SendDM(c *fiber.Ctx) error {
	return h.send(c, userRoute)
}

func (h *Handler) send(c *fiber.Ctx, route sendRoute) error {
	destinationID, text, err := parseSendBody(c, route.kind)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: errInvalidBody})
	}

	var attachments []gateway.Attachment
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: errInvalidBody})
		}
		attachments, err = dispatcher.NormalizeAttachments(form, h.dispatcher.MaxFileBytes())
		if err != nil {
			h.logger.Warn("rejected attachment", "kind", string(route.kind), "error", err)
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: errInvalidAttachment})
		}
	}

	res := h.dispatcher.Dispatch(c.UserContext(), dispatcher.Request{
		Kind:          route.kind,
		DestinationID: strings.TrimSpace(destinationID),
		Text:          text,
		Attachments:   attachments,
	})
	c.Set("X-Dispatch-ID", res.ID)

	switch res.Outcome {
	case dispatcher.OutcomeSent:
		return c.JSON(types.StatusResponse{Status: route.sent})
	case dispatcher.OutcomeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: route.notFound})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: route.failed})
	}
}

func parseSendBody(c *fiber.Ctx, kind types.DestinationKind) (id, text string, err error) {
	switch kind {
	case types.KindUser:
		var req types.SendDMRequest
		err = c.BodyParser(&req)
		return req.UserID, req.Message, err
	default:
		var req types.SendMessageRequest
		err = c.BodyParser(&req)
		return req.ChannelID, req.Message, err
	}
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// Health handles GET /health
func (h *Handler) Health(c *fiber.Ctx) error {
	state := "disconnected"
	if h.session != nil && h.session.Connected() {
		state = "connected"
	}
	return c.JSON(types.HealthResponse{Status: "ok", Gateway: state})
}

func (h *Handler) GetDispatch(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: errStoreDisabled})
	}

	record, err := h.store.GetDispatch(c.Context(), c.Params("id"))
	if err != nil {
		h.logger.Error("failed to get dispatch", "dispatch_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: errStoreFailure})
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: errDispatchNotFound})
	}

	return c.JSON(recordToDispatch(record))
}

func (h *Handler) ListDispatches(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: errStoreDisabled})
	}

	filter, err := parseDispatchFilter(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: err.Error()})
	}
	limit := filter.EffectiveLimit()

	records, total, err := h.store.ListDispatches(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list dispatches", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: errStoreFailure})
	}

	dispatches := make([]types.Dispatch, len(records))
	for i, record := range records {
		dispatches[i] = recordToDispatch(record)
	}

	// Set next cursor from last item's created_at if the page is full
	var nextCursor *string
	if len(records) == limit {
		lastCreatedAt := records[len(records)-1].CreatedAt.Format(time.RFC3339Nano)
		nextCursor = &lastCreatedAt
	}

	return c.JSON(types.ListDispatchesResponse{
		Dispatches: dispatches,
		Total:      total,
		Limit:      limit,
		NextCursor: nextCursor,
	})
}

func (h *Handler) GetDispatchStats(c *fiber.Ctx) error {
	if h.store == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: errStoreDisabled})
	}

	stats, err := h.store.GetDispatchStats(c.Context())
	if err != nil {
		h.logger.Error("failed to get dispatch stats", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: errStoreFailure})
	}
	return c.JSON(stats)
}

func parseDispatchFilter(c *fiber.Ctx) (storage.DispatchFilter, error) {
	filter := storage.DispatchFilter{Limit: c.QueryInt("limit", storage.DefaultListLimit)}

	switch kind := types.DestinationKind(c.Query("kind")); kind {
	case "":
	case types.KindChannel, types.KindUser:
		filter.Kind = &kind
	default:
		return filter, errors.New(errInvalidFilter)
	}

	switch status := types.DispatchStatus(c.Query("status")); status {
	case "":
	case types.StatusSent, types.StatusNotFound, types.StatusFailed:
		filter.Status = &status
	default:
		return filter, errors.New(errInvalidFilter)
	}

	if cursor := c.Query("cursor"); cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return filter, errors.New(errInvalidCursor)
		}
		filter.Cursor = &t
	}
	return filter, nil
}
