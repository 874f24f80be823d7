// Package gatewaytest provides an in-memory gateway.Session for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/pkg/types"
)

// Sent captures one call to Send or SendDirectMessage.
type Sent struct {
	Handle gateway.Handle
	Msg    gateway.Outbound
}

// Session is a scripted gateway. Channels and Users list the IDs that
// resolve; everything else is ErrNotFound.
type Session struct {
	Channels map[string]string
	Users    map[string]string

	FetchErr error
	SendErr  error
	DMErr    error
	Offline  bool

	mu      sync.Mutex
	sent    []Sent
	fetches int
	onJoin  []func(ctx context.Context, m gateway.Member)
	onLeave []func(ctx context.Context, m gateway.Member)
}

func New() *Session {
	return &Session{
		Channels: make(map[string]string),
		Users:    make(map[string]string),
	}
}

func (s *Session) FetchChannel(_ context.Context, id string) (*gateway.Handle, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	name, ok := s.Channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", id, gateway.ErrNotFound)
	}
	return &gateway.Handle{Kind: types.KindChannel, ID: id, Name: name}, nil
}

func (s *Session) FetchUser(_ context.Context, id string) (*gateway.Handle, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	name, ok := s.Users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, gateway.ErrNotFound)
	}
	return &gateway.Handle{Kind: types.KindUser, ID: id, Name: name}, nil
}

func (s *Session) Send(_ context.Context, h *gateway.Handle, msg gateway.Outbound) error {
	if s.SendErr != nil {
		return s.SendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Sent{Handle: *h, Msg: msg})
	return nil
}

func (s *Session) SendDirectMessage(_ context.Context, userID, text string) error {
	if s.DMErr != nil {
		return s.DMErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Sent{
		Handle: gateway.Handle{Kind: types.KindUser, ID: userID},
		Msg:    gateway.Outbound{Text: text},
	})
	return nil
}

func (s *Session) Connected() bool { return !s.Offline }

func (s *Session) OnMemberJoin(fn func(ctx context.Context, m gateway.Member)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJoin = append(s.onJoin, fn)
}

func (s *Session) OnMemberLeave(fn func(ctx context.Context, m gateway.Member)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLeave = append(s.onLeave, fn)
}

// Join delivers a member-joined event to the registered handlers.
func (s *Session) Join(m gateway.Member) {
	s.mu.Lock()
	handlers := append([]func(context.Context, gateway.Member){}, s.onJoin...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(context.Background(), m)
	}
}

// Leave delivers a member-left event to the registered handlers.
func (s *Session) Leave(m gateway.Member) {
	s.mu.Lock()
	handlers := append([]func(context.Context, gateway.Member){}, s.onLeave...)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(context.Background(), m)
	}
}

func (s *Session) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

func (s *Session) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}
