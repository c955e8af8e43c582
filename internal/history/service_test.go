package history

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store/memory"
	"github.com/cognita/watchparty/pkg/apperr"
)

func setup(t *testing.T) (*Service, *memory.Store, *models.Room, models.Identity) {
	t.Helper()
	mem := memory.New()
	ctx := context.Background()
	ada := models.Identity{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, mem.UpsertUser(ctx, ada))
	room := &models.Room{Name: "study", Kind: models.RoomPrivate, Members: []uuid.UUID{ada.ID}}
	require.NoError(t, mem.CreateRoom(ctx, room))
	return NewService(mem.Ports(), zaptest.NewLogger(t)), mem, room, ada
}

func TestAppendResolvesSenderAndMarksRead(t *testing.T) {
	svc, _, room, ada := setup(t)

	v, err := svc.Append(context.Background(), &models.Message{RoomID: room.ID, SenderID: ada.ID, Content: "hello"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, v.ID)
	assert.False(t, v.CreatedAt.IsZero())
	assert.Equal(t, models.MessageText, v.Kind)
	assert.Equal(t, "Ada", v.Sender.Name)
	assert.Equal(t, []uuid.UUID{ada.ID}, v.ReadBy)
}

func TestAppendRequiresRoomAndSender(t *testing.T) {
	svc, _, room, _ := setup(t)
	_, err := svc.Append(context.Background(), &models.Message{RoomID: room.ID})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListPagesHaveNoGapsOrDuplicates(t *testing.T) {
	svc, _, room, ada := setup(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		_, err := svc.Append(ctx, &models.Message{RoomID: room.ID, SenderID: ada.ID, Content: fmt.Sprint(i)})
		require.NoError(t, err)
	}

	seen := make(map[uuid.UUID]bool)
	var contents []string
	for p := 1; p <= 3; p++ {
		page, err := svc.List(ctx, room.ID, NewPage(p, 10, 20, 100))
		require.NoError(t, err)
		for i, m := range page {
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
			contents = append(contents, m.Content)
			if i > 0 {
				assert.False(t, m.CreatedAt.After(page[i-1].CreatedAt))
			}
			assert.Equal(t, "Ada", m.Sender.Name)
		}
	}
	require.Len(t, contents, 25)
	assert.Equal(t, "24", contents[0])
	assert.Equal(t, "0", contents[24])
}

func TestNewPageClamps(t *testing.T) {
	assert.Equal(t, Page{Page: 1, Limit: 20}, NewPage(0, 0, 20, 100))
	assert.Equal(t, Page{Page: 3, Limit: 100}, NewPage(3, 500, 20, 100))
	assert.Equal(t, 20, NewPage(3, 10, 20, 100).Offset())
}

func TestHugePageListsEmpty(t *testing.T) {
	svc, _, room, ada := setup(t)
	ctx := context.Background()
	_, err := svc.Append(ctx, &models.Message{RoomID: room.ID, SenderID: ada.ID, Content: "only"})
	require.NoError(t, err)

	p := NewPage(1<<62, 100, 20, 100)
	assert.GreaterOrEqual(t, p.Offset(), 0)
	assert.LessOrEqual(t, p.Offset(), math.MaxInt32)

	var list []models.MessageView
	require.NotPanics(t, func() { list, err = svc.List(ctx, room.ID, p) })
	require.NoError(t, err)
	assert.Empty(t, list)

	h, err := svc.ListSessionHistory(ctx, room.ID, p)
	require.NoError(t, err)
	assert.Empty(t, h.Sessions)
}

func TestListSessionHistory(t *testing.T) {
	svc, mem, room, ada := setup(t)
	ctx := context.Background()
	var last uuid.UUID
	for i := 0; i < 3; i++ {
		vs := &models.VideoSession{RoomID: room.ID, HostID: ada.ID, VideoURL: fmt.Sprintf("v%d", i)}
		require.NoError(t, mem.CreateSession(ctx, vs))
		require.NoError(t, mem.ActivateSession(ctx, room.ID, vs.ID))
		last = vs.ID
	}

	h, err := svc.ListSessionHistory(ctx, room.ID, NewPage(1, 2, 10, 100))
	require.NoError(t, err)
	assert.Equal(t, 3, h.Pagination.Total)
	require.Len(t, h.Sessions, 2)
	assert.Equal(t, last, h.Sessions[0].ID)
	assert.Equal(t, "Ada", h.Sessions[0].Host.Name)

	_, err = svc.ListSessionHistory(ctx, uuid.New(), NewPage(1, 2, 10, 100))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMarkReadChecksRoom(t *testing.T) {
	svc, _, room, ada := setup(t)
	ctx := context.Background()
	v, err := svc.Append(ctx, &models.Message{RoomID: room.ID, SenderID: ada.ID, Content: "hi"})
	require.NoError(t, err)

	reader := uuid.New()
	require.NoError(t, svc.MarkRead(ctx, room.ID, v.ID, reader))
	assert.ErrorIs(t, svc.MarkRead(ctx, uuid.New(), v.ID, reader), apperr.ErrNotFound)

	page, err := svc.List(ctx, room.ID, NewPage(1, 10, 20, 100))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{ada.ID, reader}, page[0].ReadBy)
}
