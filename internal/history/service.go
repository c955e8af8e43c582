// Package history is the durable event log of a room: chat messages, video
// system messages and video events, plus the room's video session history.
package history

import (
	"context"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Page is a 1-based skip/limit window.
type Page struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Offset returns the number of entries to skip.
func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// maxOffset bounds Offset so a huge page number cannot overflow.
const maxOffset = math.MaxInt32

// NewPage clamps page and limit, substituting def for a missing limit.
// Pages past maxOffset are pinned to the last addressable page.
func NewPage(page, limit, def, max int) Page {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = def
	}
	if max > 0 && limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	if page-1 > maxOffset/limit {
		page = maxOffset/limit + 1
	}
	return Page{Page: page, Limit: limit}
}

// SessionHistory is one page of a room's video sessions.
type SessionHistory struct {
	Sessions   []models.VideoSessionSummary `json:"sessions"`
	Pagination Pagination                   `json:"pagination"`
}

// Pagination describes the page returned and the room's total.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// Service appends to and reads from the log.
type Service struct {
	messages store.Messages
	sessions store.Sessions
	rooms    store.Rooms
	users    store.Users
	logger   *zap.Logger
}

// NewService creates a history service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{messages: st.Messages, sessions: st.Sessions, rooms: st.Rooms, users: st.Users, logger: logger}
}

// Append stores msg and returns it with the sender resolved. The sender is
// the first reader of its own message.
func (s *Service) Append(ctx context.Context, msg *models.Message) (*models.MessageView, error) {
	if msg.RoomID == uuid.Nil || msg.SenderID == uuid.Nil {
		return nil, apperr.Validation("message requires a room and a sender")
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageText
	}
	if len(msg.ReadBy) == 0 {
		msg.ReadBy = []uuid.UUID{msg.SenderID}
	}
	if err := s.messages.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	dir, err := s.users.ResolveUsers(ctx, []uuid.UUID{msg.SenderID})
	if err != nil {
		// The entry is stored; an unresolved sender falls back to its id.
		s.logger.Warn("resolve sender failed", zap.Error(err), zap.String("message_id", msg.ID.String()))
	}
	v := msg.View(dir)
	return &v, nil
}

// List returns a page of the room's log, newest first.
func (s *Service) List(ctx context.Context, roomID uuid.UUID, page Page) ([]models.MessageView, error) {
	list, err := s.messages.ListMessages(ctx, roomID, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.SenderID)
	}
	dir, err := s.users.ResolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]models.MessageView, 0, len(list))
	for _, m := range list {
		views = append(views, m.View(dir))
	}
	return views, nil
}

// ListSessionHistory returns a page of the room's video sessions, newest
// first, with each host resolved.
func (s *Service) ListSessionHistory(ctx context.Context, roomID uuid.UUID, page Page) (*SessionHistory, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	list, _, err := s.sessions.ListSessions(ctx, roomID, page.Offset(), page.Limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(list))
	for _, vs := range list {
		ids = append(ids, vs.HostID)
	}
	dir, err := s.users.ResolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := &SessionHistory{
		Sessions:   make([]models.VideoSessionSummary, 0, len(list)),
		Pagination: Pagination{Page: page.Page, Limit: page.Limit, Total: len(room.VideoSessionHistory)},
	}
	for _, vs := range list {
		out.Sessions = append(out.Sessions, models.VideoSessionSummary{VideoSession: vs, Host: dir.Lookup(vs.HostID)})
	}
	return out, nil
}

// MarkRead records that userID has read messageID, which must belong to roomID.
func (s *Service) MarkRead(ctx context.Context, roomID, messageID, userID uuid.UUID) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.RoomID != roomID {
		return apperr.NotFound("Message not found")
	}
	return s.messages.MarkRead(ctx, messageID, userID)
}
