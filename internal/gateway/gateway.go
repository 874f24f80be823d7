package gateway

import (
	"context"
	"errors"

	"github.com/georgeshao/discord-relay/pkg/types"
)

// ErrNotFound is returned (wrapped) when a channel or user ID does not
// resolve to a live destination.
var ErrNotFound = errors.New("destination not found")

// Handle is a live destination returned by a lookup. It is only valid for
// the send that follows the lookup and must not be cached.
type Handle struct {
	Kind types.DestinationKind
	ID   string
	Name string
}

// Attachment is a named binary payload attached to an outgoing message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Outbound is the content handed to Session.Send.
type Outbound struct {
	Text        string
	Attachments []Attachment
}

// Member identifies a guild member in a membership event.
type Member struct {
	UserID   string
	Username string
	GuildID  string
}

// Session is the persistent connection to the chat platform.
type Session interface {
	FetchChannel(ctx context.Context, id string) (*Handle, error)
	FetchUser(ctx context.Context, id string) (*Handle, error)
	Send(ctx context.Context, h *Handle, msg Outbound) error
	SendDirectMessage(ctx context.Context, userID, text string) error
	Connected() bool
}

// MemberEvents delivers membership changes. Handlers run on the session's
// event goroutines.
type MemberEvents interface {
	OnMemberJoin(fn func(ctx context.Context, m Member))
	OnMemberLeave(fn func(ctx context.Context, m Member))
}

// Fetch resolves id with the lookup matching kind.
func Fetch(ctx context.Context, s Session, kind types.DestinationKind, id string) (*Handle, error) {
	switch kind {
	case types.KindChannel:
		return s.FetchChannel(ctx, id)
	case types.KindUser:
		return s.FetchUser(ctx, id)
	default:
		return nil, errors.New("unknown destination kind: " + string(kind))
	}
}
