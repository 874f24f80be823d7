package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/discord-relay/internal/gateway"
	"github.com/georgeshao/discord-relay/internal/gateway/gatewaytest"
	"github.com/georgeshao/discord-relay/internal/storage"
	"github.com/georgeshao/discord-relay/pkg/types"
)

type fakeStore struct {
	mu        sync.Mutex
	records   []*storage.DispatchRecord
	createErr error
}

func (f *fakeStore) CreateDispatch(_ context.Context, rec *storage.DispatchRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) GetDispatch(context.Context, string) (*storage.DispatchRecord, error) {
	return nil, nil
}

func (f *fakeStore) ListDispatches(context.Context, storage.DispatchFilter) ([]*storage.DispatchRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) GetDispatchStats(context.Context) (*types.DispatchStats, error) {
	return &types.DispatchStats{}, nil
}

func (f *fakeStore) Close() error { return nil }

func newTestDispatcher(t *testing.T, store storage.Store) (*Dispatcher, *gatewaytest.Session) {
	t.Helper()
	session := gatewaytest.New()
	session.Channels["123"] = "general"
	session.Users["42"] = "alice"
	return New(session, store, DefaultConfig(), nil), session
}

func TestDispatch_ChannelSent(t *testing.T) {
	d, session := newTestDispatcher(t, nil)

	res := d.Dispatch(context.Background(), Request{
		Kind:          types.KindChannel,
		DestinationID: "123",
		Text:          "hi",
	})

	require.Equal(t, OutcomeSent, res.Outcome)
	require.NoError(t, res.Err)
	assert.True(t, strings.HasPrefix(res.ID, "disp_"))

	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.KindChannel, sent[0].Handle.Kind)
	assert.Equal(t, "123", sent[0].Handle.ID)
	assert.Equal(t, "hi", sent[0].Msg.Text)
	assert.Empty(t, sent[0].Msg.Attachments)
}

func TestDispatch_UserSentWithAttachments(t *testing.T) {
	d, session := newTestDispatcher(t, nil)
	files := []gateway.Attachment{
		{Name: "a.png", ContentType: "image/png", Data: []byte{1, 2}},
		{Name: "b.txt", ContentType: "text/plain", Data: []byte("b")},
	}

	res := d.Dispatch(context.Background(), Request{
		Kind:          types.KindUser,
		DestinationID: "42",
		Text:          "see attached",
		Attachments:   files,
	})

	require.Equal(t, OutcomeSent, res.Outcome)
	sent := session.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.KindUser, sent[0].Handle.Kind)
	assert.Equal(t, files, sent[0].Msg.Attachments)
}

func TestDispatch_NotFoundNeverSends(t *testing.T) {
	d, session := newTestDispatcher(t, nil)

	for _, kind := range []types.DestinationKind{types.KindChannel, types.KindUser} {
		res := d.Dispatch(context.Background(), Request{Kind: kind, DestinationID: "999", Text: "hi"})
		assert.Equal(t, OutcomeNotFound, res.Outcome, kind)
		assert.ErrorIs(t, res.Err, gateway.ErrNotFound)
	}
	assert.Empty(t, session.Sent())
}

func TestDispatch_SendErrorIsFailure(t *testing.T) {
	d, session := newTestDispatcher(t, nil)
	session.SendErr = errors.New("discord: 500 Internal Server Error")

	for _, n := range []int{0, 1, 3} {
		req := Request{Kind: types.KindChannel, DestinationID: "123"}
		for i := 0; i < n; i++ {
			req.Attachments = append(req.Attachments, gateway.Attachment{Name: "f", Data: []byte("x")})
		}
		res := d.Dispatch(context.Background(), req)
		assert.Equal(t, OutcomeSendFailed, res.Outcome, "attachments=%d", n)
		assert.Error(t, res.Err)
	}
}

func TestDispatch_ResolveErrorIsFailure(t *testing.T) {
	d, session := newTestDispatcher(t, nil)
	session.FetchErr = errors.New("gateway timeout")

	res := d.Dispatch(context.Background(), Request{Kind: types.KindUser, DestinationID: "42", Text: "hi"})
	assert.Equal(t, OutcomeSendFailed, res.Outcome)
	assert.NotErrorIs(t, res.Err, gateway.ErrNotFound)
	assert.Empty(t, session.Sent())
}

func TestDispatch_EmptyContentStillSends(t *testing.T) {
	d, session := newTestDispatcher(t, nil)

	res := d.Dispatch(context.Background(), Request{Kind: types.KindChannel, DestinationID: "123"})
	require.Equal(t, OutcomeSent, res.Outcome)
	require.Len(t, session.Sent(), 1)
	assert.Equal(t, "", session.Sent()[0].Msg.Text)
}

func TestDispatch_RecordsMetadata(t *testing.T) {
	store := &fakeStore{}
	d, session := newTestDispatcher(t, store)
	session.SendErr = errors.New("boom")

	missing := d.Dispatch(context.Background(), Request{
		Kind:          types.KindChannel,
		DestinationID: "999",
		Text:          "hello",
	})
	failed := d.Dispatch(context.Background(), Request{
		Kind:          types.KindUser,
		DestinationID: "42",
		Text:          "hey",
		Attachments:   []gateway.Attachment{{Name: "a", Data: make([]byte, 10)}},
	})

	require.Len(t, store.records, 2)

	nf := store.records[0]
	assert.Equal(t, missing.ID, nf.ID)
	assert.Equal(t, types.StatusNotFound, nf.Status)
	assert.Equal(t, 5, nf.TextLength)
	require.NotNil(t, nf.CompletedAt)

	fail := store.records[1]
	assert.Equal(t, failed.ID, fail.ID)
	assert.Equal(t, types.StatusFailed, fail.Status)
	assert.Equal(t, 1, fail.AttachmentCount)
	assert.Equal(t, int64(10), fail.AttachmentBytes)
	require.NotNil(t, fail.Error)
	assert.Equal(t, "boom", *fail.Error)
}

func TestDispatch_StoreErrorDoesNotChangeOutcome(t *testing.T) {
	d, _ := newTestDispatcher(t, &fakeStore{createErr: errors.New("disk full")})

	res := d.Dispatch(context.Background(), Request{Kind: types.KindChannel, DestinationID: "123", Text: "hi"})
	assert.Equal(t, OutcomeSent, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestDispatch_UniqueIDs(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	a := d.Dispatch(context.Background(), Request{Kind: types.KindChannel, DestinationID: "123"})
	b := d.Dispatch(context.Background(), Request{Kind: types.KindChannel, DestinationID: "123"})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestOutcomeStatus(t *testing.T) {
	assert.Equal(t, types.StatusSent, OutcomeSent.Status())
	assert.Equal(t, types.StatusNotFound, OutcomeNotFound.Status())
	assert.Equal(t, types.StatusFailed, OutcomeSendFailed.Status())
	assert.Equal(t, "send_failed", OutcomeSendFailed.String())
}
