// Package memory is an in-process implementation of the store ports, used by
// tests and by single-node deployments with STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Store holds every entity in maps guarded by a single mutex.
// Values are copied on the way in and out so callers never share state.
type Store struct {
	mu sync.RWMutex

	rooms    map[uuid.UUID]*models.Room
	messages map[uuid.UUID]*models.Message
	roomLog  map[uuid.UUID][]uuid.UUID // message IDs per room in append order
	sessions map[uuid.UUID]*sessionRecord
	users    map[uuid.UUID]models.UserPublic
	seq      int64

	now func() time.Time
}

type sessionRecord struct {
	s   *models.VideoSession
	seq int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rooms:    make(map[uuid.UUID]*models.Room),
		messages: make(map[uuid.UUID]*models.Message),
		roomLog:  make(map[uuid.UUID][]uuid.UUID),
		sessions: make(map[uuid.UUID]*sessionRecord),
		users:    make(map[uuid.UUID]models.UserPublic),
		now:      time.Now,
	}
}

// Ports returns the store as the grouped persistence ports.
func (m *Store) Ports() store.Store {
	return store.Store{Rooms: m, Messages: m, Sessions: m, Users: m}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	c.Members = append([]uuid.UUID{}, r.Members...)
	c.VideoSessionHistory = append([]uuid.UUID{}, r.VideoSessionHistory...)
	if r.LastMessage != nil {
		id := *r.LastMessage
		c.LastMessage = &id
	}
	if r.ActiveVideoSession != nil {
		id := *r.ActiveVideoSession
		c.ActiveVideoSession = &id
	}
	return &c
}

func cloneMessage(msg *models.Message) *models.Message {
	c := *msg
	c.ReadBy = append([]uuid.UUID{}, msg.ReadBy...)
	if msg.VideoSessionID != nil {
		id := *msg.VideoSessionID
		c.VideoSessionID = &id
	}
	if msg.VideoEvent != nil {
		ev := *msg.VideoEvent
		ev.Data = append([]byte(nil), msg.VideoEvent.Data...)
		c.VideoEvent = &ev
	}
	return &c
}

func (m *Store) room(id uuid.UUID) (*models.Room, error) {
	r, ok := m.rooms[id]
	if !ok {
		return nil, apperr.NotFound("Chatroom not found")
	}
	return r, nil
}

// CreateRoom stores a room and fills its ID and timestamps.
func (m *Store) CreateRoom(_ context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	room.ID = uuid.New()
	room.CreatedAt, room.UpdatedAt = now, now
	if room.Members == nil {
		room.Members = []uuid.UUID{}
	}
	if room.VideoSessionHistory == nil {
		room.VideoSessionHistory = []uuid.UUID{}
	}
	m.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (m *Store) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, err := m.room(id)
	if err != nil {
		return nil, err
	}
	return cloneRoom(r), nil
}

func (m *Store) ListRoomsByMember(_ context.Context, userID uuid.UUID) ([]models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []models.Room
	for _, r := range m.rooms {
		if r.IsMember(userID) {
			list = append(list, *cloneRoom(r))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (m *Store) AddRoomMember(_ context.Context, roomID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(roomID)
	if err != nil {
		return err
	}
	if !r.IsMember(userID) {
		r.Members = append(r.Members, userID)
	}
	r.UpdatedAt = m.now()
	return nil
}

func (m *Store) SetLastMessage(_ context.Context, roomID, messageID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(roomID)
	if err != nil {
		return err
	}
	r.LastMessage = &messageID
	r.UpdatedAt = m.now()
	return nil
}

func (m *Store) ActivateSession(_ context.Context, roomID, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(roomID)
	if err != nil {
		return err
	}
	r.ActiveVideoSession = &sessionID
	r.VideoSessionHistory = append(r.VideoSessionHistory, sessionID)
	r.UpdatedAt = m.now()
	return nil
}

func (m *Store) ClearActiveSession(_ context.Context, roomID, sessionID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.room(roomID)
	if err != nil {
		return err
	}
	if r.ActiveVideoSession != nil && *r.ActiveVideoSession == sessionID {
		r.ActiveVideoSession = nil
		r.UpdatedAt = m.now()
	}
	return nil
}

// AppendMessage stores msg and fills its ID and creation time.
func (m *Store) AppendMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	msg.CreatedAt = m.now()
	if msg.ReadBy == nil {
		msg.ReadBy = []uuid.UUID{}
	}
	m.messages[msg.ID] = cloneMessage(msg)
	m.roomLog[msg.RoomID] = append(m.roomLog[msg.RoomID], msg.ID)
	return nil
}

func (m *Store) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.NotFound("Message not found")
	}
	return cloneMessage(msg), nil
}

// ListMessages walks the room log backwards so ties on CreatedAt keep
// reverse append order.
func (m *Store) ListMessages(_ context.Context, roomID uuid.UUID, offset, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.roomLog[roomID]
	if offset < 0 || offset >= len(log) || limit <= 0 {
		return []models.Message{}, nil
	}
	list := make([]models.Message, 0, min(limit, len(log)-offset))
	for i := len(log) - 1 - offset; i >= 0 && len(list) < limit; i-- {
		list = append(list, *cloneMessage(m.messages[log[i]]))
	}
	return list, nil
}

func (m *Store) MarkRead(_ context.Context, messageID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return apperr.NotFound("Message not found")
	}
	for _, id := range msg.ReadBy {
		if id == userID {
			return nil
		}
	}
	msg.ReadBy = append(msg.ReadBy, userID)
	return nil
}

// CreateSession stores s and fills its ID and timestamps.
func (m *Store) CreateSession(_ context.Context, s *models.VideoSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s.ID = uuid.New()
	s.CreatedAt, s.UpdatedAt = now, now
	m.seq++
	m.sessions[s.ID] = &sessionRecord{s: s.Clone(), seq: m.seq}
	return nil
}

func (m *Store) GetSession(_ context.Context, id uuid.UUID) (*models.VideoSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, apperr.NotFound("Video session not found")
	}
	return rec.s.Clone(), nil
}

func (m *Store) SaveSession(_ context.Context, s *models.VideoSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[s.ID]
	if !ok {
		return apperr.NotFound("Video session not found")
	}
	c := s.Clone()
	c.RoomID, c.CreatedAt = rec.s.RoomID, rec.s.CreatedAt
	rec.s = c
	return nil
}

func (m *Store) EndSession(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return apperr.NotFound("Video session not found")
	}
	rec.s.End(at)
	return nil
}

func (m *Store) ListSessions(_ context.Context, roomID uuid.UUID, offset, limit int) ([]models.VideoSession, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var recs []*sessionRecord
	for _, rec := range m.sessions {
		if rec.s.RoomID == roomID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })

	if offset < 0 || offset >= len(recs) || limit <= 0 {
		return []models.VideoSession{}, len(recs), nil
	}
	list := make([]models.VideoSession, 0, min(limit, len(recs)-offset))
	for i := offset; i < len(recs) && len(list) < limit; i++ {
		list = append(list, *recs[i].s.Clone())
	}
	return list, len(recs), nil
}

func (m *Store) ResolveUsers(_ context.Context, ids []uuid.UUID) (models.UserDirectory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dir := make(models.UserDirectory, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			dir[id] = u
		}
	}
	return dir, nil
}

func (m *Store) UpsertUser(_ context.Context, id models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id.ID] = id.Public()
	return nil
}
