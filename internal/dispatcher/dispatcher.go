package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

type Config struct {
	MaxFileBytes int64
}

func DefaultConfig() Config {
	return Config{
		MaxFileBytes: 25 * 1024 * 1024,
	}
}

// Outcome is the result of one dispatch as seen by the HTTP layer.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeNotFound
	OutcomeSendFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "send_failed"
	}
}

// Status maps the outcome to the stored dispatch status.
func (o Outcome) Status() types.DispatchStatus {
	switch o {
	case OutcomeSent:
		return types.StatusSent
	case OutcomeNotFound:
		return types.StatusNotFound
	default:
		return types.StatusFailed
	}
}

// Request is one delivery attempt. Attachments are already normalized.
type Request struct {
	Kind          types.DestinationKind
	DestinationID string
	Text          string
	Attachments   []gateway.Attachment
}

type Result struct {
	ID      string
	Outcome Outcome
	Err     error
}

// Dispatcher resolves a destination and sends to it through the gateway
// session. It holds no per-request state, so one instance serves all
// requests concurrently. store may be nil.
type Dispatcher struct {
	session gateway.Session
	store   storage.Store
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

func New(session gateway.Session, store storage.Store, config Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		session: session,
		store:   store,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

func (d *Dispatcher) MaxFileBytes() int64 {
	return d.config.MaxFileBytes
}

// Dispatch makes exactly one resolve and at most one send. Nothing is
// retried. Empty text with no attachments is still sent.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	res := Result{ID: "disp_" + uuid.New().String()}
	startedAt := d.now()
	log := d.logger.With(
		"dispatch_id", res.ID,
		"kind", string(req.Kind),
		"destination_id", req.DestinationID,
	)

	handle, err := gateway.Fetch(ctx, d.session, req.Kind, req.DestinationID)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		log.Info("destination not found")
		res.Outcome = OutcomeNotFound
		res.Err = err
	case err != nil:
		log.Error("failed to resolve destination", "error", err)
		res.Outcome = OutcomeSendFailed
		res.Err = err
	default:
		err = d.session.Send(ctx, handle, gateway.Outbound{
			Text:        req.Text,
			Attachments: req.Attachments,
		})
		if err != nil {
			log.Error("failed to send message", "error", err, "attachments", len(req.Attachments))
			res.Outcome = OutcomeSendFailed
			res.Err = err
		} else {
			log.Info("message sent", "attachments", len(req.Attachments))
			res.Outcome = OutcomeSent
		}
	}

	d.record(ctx, req, res, startedAt)
	return res
}

// record stores the dispatch metadata. It runs after the outcome is
// decided and never changes it.
func (d *Dispatcher) record(ctx context.Context, req Request, res Result, startedAt time.Time) {
	if d.store == nil {
		return
	}

	completedAt := d.now()
	rec := &storage.DispatchRecord{
		ID:              res.ID,
		Kind:            req.Kind,
		DestinationID:   req.DestinationID,
		Status:          res.Outcome.Status(),
		TextLength:      len(req.Text),
		AttachmentCount: len(req.Attachments),
		CreatedAt:       startedAt,
		CompletedAt:     &completedAt,
	}
	for _, a := range req.Attachments {
		rec.AttachmentBytes += int64(len(a.Data))
	}
	if res.Err != nil {
		msg := res.Err.Error()
		rec.Error = &msg
	}

	if err := d.store.CreateDispatch(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Error("failed to record dispatch", "dispatch_id", res.ID, "error", err)
	}
}
