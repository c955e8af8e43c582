package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

func newRoom(t *testing.T, s *Store, members ...uuid.UUID) *models.Room {
	t.Helper()
	r := &models.Room{Name: "movie night", Kind: models.RoomPrivate, Members: members}
	require.NoError(t, s.CreateRoom(context.Background(), r))
	return r
}

func TestListMessagesNewestFirstWithTies(t *testing.T) {
	s := New()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()
	room := newRoom(t, s)

	var ids []uuid.UUID
	for _, text := range []string{"a", "b", "c", "d"} {
		m := &models.Message{RoomID: room.ID, Kind: models.MessageText, Content: text}
		require.NoError(t, s.AppendMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	page, err := s.ListMessages(ctx, room.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].Content)
	assert.Equal(t, "c", page[1].Content)

	page, err = s.ListMessages(ctx, room.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[0], page[1].ID)

	page, err = s.ListMessages(ctx, room.ID, 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestClearActiveSessionIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s)
	first, second := uuid.New(), uuid.New()

	require.NoError(t, s.ActivateSession(ctx, room.ID, first))
	require.NoError(t, s.ActivateSession(ctx, room.ID, second))
	require.NoError(t, s.ClearActiveSession(ctx, room.ID, first))

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ActiveVideoSession)
	assert.Equal(t, second, *got.ActiveVideoSession)
	assert.Equal(t, []uuid.UUID{first, second}, got.VideoSessionHistory)

	require.NoError(t, s.ClearActiveSession(ctx, room.ID, second))
	got, err = s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ActiveVideoSession)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	member := uuid.New()
	room := newRoom(t, s, member)

	got, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	got.Members[0] = uuid.New()

	again, err := s.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, member, again.Members[0])

	vs := &models.VideoSession{RoomID: room.ID, Participants: []uuid.UUID{member}, IsActive: true}
	require.NoError(t, s.CreateSession(ctx, vs))
	vs.Participants = append(vs.Participants, uuid.New())
	stored, err := s.GetSession(ctx, vs.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Participants, 1)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s)
	reader := uuid.New()
	m := &models.Message{RoomID: room.ID, Kind: models.MessageText, Content: "hi"}
	require.NoError(t, s.AppendMessage(ctx, m))

	require.NoError(t, s.MarkRead(ctx, m.ID, reader))
	require.NoError(t, s.MarkRead(ctx, m.ID, reader))
	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{reader}, got.ReadBy)

	assert.ErrorIs(t, s.MarkRead(ctx, uuid.New(), reader), apperr.ErrNotFound)
}

func TestListSessionsPaginatesNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s)
	other := newRoom(t, s)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		vs := &models.VideoSession{RoomID: room.ID, IsActive: true}
		require.NoError(t, s.CreateSession(ctx, vs))
		ids = append(ids, vs.ID)
	}
	require.NoError(t, s.CreateSession(ctx, &models.VideoSession{RoomID: other.ID}))

	list, total, err := s.ListSessions(ctx, room.ID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
}

func TestListOutOfRangeOffsetIsEmpty(t *testing.T) {
	s := New()
	ctx := context.Background()
	room := newRoom(t, s)
	require.NoError(t, s.AppendMessage(ctx, &models.Message{RoomID: room.ID, Kind: models.MessageText, Content: "a"}))
	require.NoError(t, s.CreateSession(ctx, &models.VideoSession{RoomID: room.ID}))

	for _, offset := range []int{-5, 1, 1 << 40} {
		msgs, err := s.ListMessages(ctx, room.ID, offset, 10)
		require.NoError(t, err)
		assert.Empty(t, msgs, "offset %d", offset)

		sessions, total, err := s.ListSessions(ctx, room.ID, offset, 10)
		require.NoError(t, err)
		assert.Empty(t, sessions, "offset %d", offset)
		assert.Equal(t, 1, total)
	}
}

func TestMissingEntitiesAreNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.GetRoom(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.GetSession(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, s.SaveSession(ctx, &models.VideoSession{ID: uuid.New()}), apperr.ErrNotFound)
}

func TestResolveUsersSkipsUnknown(t *testing.T) {
	s := New()
	ctx := context.Background()
	known := models.Identity{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, s.UpsertUser(ctx, known))

	dir, err := s.ResolveUsers(ctx, []uuid.UUID{known.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, dir, 1)
	assert.Equal(t, "Ada", dir[known.ID].Name)
}
