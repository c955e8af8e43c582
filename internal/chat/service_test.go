package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/roomqueue"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/internal/store/memory"
	"github.com/cognita/watchparty/pkg/apperr"
)

type sent struct {
	channel string
	event   string
	payload interface{}
	exclude uuid.UUID
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Broadcast(channel, event string, payload interface{}, exclude uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{channel, event, payload, exclude})
}

func (r *recorder) all() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.sent...)
}

type failingMessages struct {
	store.Messages
}

func (failingMessages) AppendMessage(context.Context, *models.Message) error {
	return apperr.Storage("append message", errors.New("disk full"))
}

type fixture struct {
	svc    *Service
	mem    *memory.Store
	hub    *recorder
	room   *models.Room
	member models.Caller
}

func newFixture(t *testing.T, wrap func(store.Store) store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	ada := models.Identity{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, mem.UpsertUser(ctx, ada))
	room := &models.Room{Name: "study", Members: []uuid.UUID{ada.ID}}
	require.NoError(t, mem.CreateRoom(ctx, room))

	st := mem.Ports()
	if wrap != nil {
		st = wrap(st)
	}
	logger := zaptest.NewLogger(t)
	hub := &recorder{}
	svc := NewService(st.Rooms, history.NewService(st, logger), roomqueue.New(16, logger), hub, logger)
	return &fixture{svc: svc, mem: mem, hub: hub, room: room, member: models.Caller{Identity: ada, ConnID: uuid.New()}}
}

func TestSendMessageBroadcastsToWholeRoom(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	msg, err := f.svc.SendMessage(ctx, f.member, f.room.ID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Ada", msg.Sender.Name)

	out := f.hub.all()
	require.Len(t, out, 1)
	assert.Equal(t, models.RoomChannel(f.room.ID), out[0].channel)
	assert.Equal(t, models.EventNewMessage, out[0].event)
	assert.Equal(t, uuid.Nil, out[0].exclude)

	room, err := f.mem.GetRoom(ctx, f.room.ID)
	require.NoError(t, err)
	require.NotNil(t, room.LastMessage)
	assert.Equal(t, msg.ID, *room.LastMessage)
}

func TestSendMessageRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	stranger := models.Caller{Identity: models.Identity{ID: uuid.New()}}

	tests := []struct {
		name    string
		caller  models.Caller
		roomID  uuid.UUID
		content string
		want    error
	}{
		{"empty content", f.member, f.room.ID, "   ", apperr.ErrValidation},
		{"not a member", stranger, f.room.ID, "hi", apperr.ErrPermission},
		{"unknown room", f.member, uuid.New(), "hi", apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, tt.caller, tt.roomID, tt.content)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.hub.all())
}

func TestSendMessageStorageFailureDoesNotBroadcast(t *testing.T) {
	f := newFixture(t, func(st store.Store) store.Store {
		st.Messages = failingMessages{st.Messages}
		return st
	})
	_, err := f.svc.SendMessage(context.Background(), f.member, f.room.ID, "hi")
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.Empty(t, f.hub.all())
}

func TestTypingExcludesSender(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.svc.Typing(ctx, f.member, f.room.ID))
	require.NoError(t, f.svc.StopTyping(ctx, f.member, f.room.ID))

	out := f.hub.all()
	require.Len(t, out, 2)
	assert.Equal(t, models.EventUserTyping, out[0].event)
	assert.Equal(t, models.EventUserStoppedTyping, out[1].event)
	for _, s := range out {
		assert.Equal(t, f.member.ConnID, s.exclude)
		assert.Equal(t, TypingPayload{UserID: f.member.ID}, s.payload)
	}

	page, err := f.mem.ListMessages(ctx, f.room.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestLogOrderMatchesBroadcastOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, f.member, f.room.ID, "m")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	page, err := f.mem.ListMessages(ctx, f.room.ID, 0, 100)
	require.NoError(t, err)
	out := f.hub.all()
	require.Len(t, out, len(page))
	for i, s := range out {
		view := s.payload.(*models.MessageView)
		// The log lists newest first, broadcasts arrive oldest first.
		assert.Equal(t, page[len(page)-1-i].ID, view.ID)
	}
}
