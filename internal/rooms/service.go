// Package rooms creates chat rooms and lists them for their members.
package rooms

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// CreateRequest is the body for POST /chatrooms.
type CreateRequest struct {
	Name                 string      `json:"name" binding:"required"`
	Type                 string      `json:"type"`
	Members              []uuid.UUID `json:"members"`
	AllowVideoSharing    *bool       `json:"allowVideoSharing"`
	MaxVideoParticipants *int        `json:"maxVideoParticipants"`
}

// Service manages rooms.
type Service struct {
	rooms    store.Rooms
	messages store.Messages
	users    store.Users
	logger   *zap.Logger
}

// NewService creates a room service.
func NewService(st store.Store, logger *zap.Logger) *Service {
	return &Service{rooms: st.Rooms, messages: st.Messages, users: st.Users, logger: logger}
}

// Create creates a room. The creator is always a member.
func (s *Service) Create(ctx context.Context, creator models.Identity, req CreateRequest) (*models.RoomView, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	kind := models.RoomPublic
	switch req.Type {
	case "", string(models.RoomPublic):
	case string(models.RoomPrivate):
		kind = models.RoomPrivate
	default:
		return nil, apperr.Validation("type must be private or public")
	}

	room := &models.Room{
		Name:                 name,
		Kind:                 kind,
		AllowVideoSharing:    true,
		MaxVideoParticipants: models.DefaultMaxVideoParticipants,
	}
	if req.AllowVideoSharing != nil {
		room.AllowVideoSharing = *req.AllowVideoSharing
	}
	if req.MaxVideoParticipants != nil {
		if *req.MaxVideoParticipants < 0 {
			return nil, apperr.Validation("maxVideoParticipants must not be negative")
		}
		room.MaxVideoParticipants = *req.MaxVideoParticipants
	}
	room.Members = append(room.Members, creator.ID)
	for _, m := range req.Members {
		if m != uuid.Nil && !room.IsMember(m) {
			room.Members = append(room.Members, m)
		}
	}

	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	s.logger.Info("chatroom created", zap.String("room_id", room.ID.String()), zap.String("user_id", creator.ID.String()))
	return s.view(ctx, room)
}

// Get returns a room with members and last message resolved.
func (s *Service) Get(ctx context.Context, roomID uuid.UUID) (*models.RoomView, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, room)
}

// ListForMember returns the rooms userID belongs to.
func (s *Service) ListForMember(ctx context.Context, userID uuid.UUID) ([]models.RoomView, error) {
	list, err := s.rooms.ListRoomsByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.RoomView, 0, len(list))
	for i := range list {
		v, err := s.view(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// AddMember adds userID to the room. Only existing members may add others.
func (s *Service) AddMember(ctx context.Context, requester models.Identity, roomID, userID uuid.UUID) (*models.RoomView, error) {
	if userID == uuid.Nil {
		return nil, apperr.Validation("userId is required")
	}
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(requester.ID) {
		return nil, apperr.Permission("You are not a member of this chatroom")
	}
	if err := s.rooms.AddRoomMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.Get(ctx, roomID)
}

func (s *Service) view(ctx context.Context, room *models.Room) (*models.RoomView, error) {
	ids := append([]uuid.UUID(nil), room.Members...)
	var last *models.Message
	if room.LastMessage != nil {
		m, err := s.messages.GetMessage(ctx, *room.LastMessage)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
		if m != nil {
			last = m
			ids = append(ids, m.SenderID)
		}
	}
	dir, err := s.users.ResolveUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	v := &models.RoomView{Room: *room, Members: make([]models.UserPublic, 0, len(room.Members))}
	for _, m := range room.Members {
		v.Members = append(v.Members, dir.Lookup(m))
	}
	if last != nil {
		lv := last.View(dir)
		v.LastMessage = &lv
	}
	return v, nil
}
