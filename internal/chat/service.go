// Package chat delivers room chat: persisted text messages rebroadcast to the
// whole room, and ephemeral typing indicators.
package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/roomqueue"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Broadcaster fans an event out to a channel. exclude names a connection
// that must not receive it, or uuid.Nil.
type Broadcaster interface {
	Broadcast(channel, event string, payload interface{}, exclude uuid.UUID)
}

// MaxContentLength bounds a single chat message.
const MaxContentLength = 4000

// Service implements sendMessage, typing and stopTyping.
type Service struct {
	rooms   store.Rooms
	history *history.Service
	queue   *roomqueue.Serializer
	hub     Broadcaster
	logger  *zap.Logger
}

// NewService creates a chat service.
func NewService(rooms store.Rooms, hist *history.Service, queue *roomqueue.Serializer, hub Broadcaster, logger *zap.Logger) *Service {
	return &Service{rooms: rooms, history: hist, queue: queue, hub: hub, logger: logger}
}

// TypingPayload is the body of userTyping and userStoppedTyping.
type TypingPayload struct {
	UserID uuid.UUID `json:"userId"`
}

func (s *Service) requireMember(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(userID) {
		return nil, apperr.Permission("You are not a member of this chatroom")
	}
	return room, nil
}

// SendMessage appends a text message and rebroadcasts it to every connection
// on the room channel, the sender's included.
func (s *Service) SendMessage(ctx context.Context, caller models.Caller, roomID uuid.UUID, content string) (*models.MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("content is required")
	}
	if len(content) > MaxContentLength {
		return nil, apperr.Validation("content is too long")
	}
	if _, err := s.requireMember(ctx, roomID, caller.ID); err != nil {
		return nil, err
	}

	var out *models.MessageView
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		view, err := s.history.Append(ctx, &models.Message{
			RoomID:   roomID,
			SenderID: caller.ID,
			Kind:     models.MessageText,
			Content:  content,
		})
		if err != nil {
			return err
		}
		if err := s.rooms.SetLastMessage(ctx, roomID, view.ID); err != nil {
			// The message is durable; a stale lastMessage pointer is not worth withholding it.
			s.logger.Warn("set last message failed", zap.Error(err), zap.String("room_id", roomID.String()))
		}
		s.hub.Broadcast(models.RoomChannel(roomID), models.EventNewMessage, view, uuid.Nil)
		out = view
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Typing tells the other connections in the room that caller is typing.
func (s *Service) Typing(ctx context.Context, caller models.Caller, roomID uuid.UUID) error {
	return s.typing(ctx, caller, roomID, models.EventUserTyping)
}

// StopTyping tells the other connections in the room that caller stopped typing.
func (s *Service) StopTyping(ctx context.Context, caller models.Caller, roomID uuid.UUID) error {
	return s.typing(ctx, caller, roomID, models.EventUserStoppedTyping)
}

func (s *Service) typing(ctx context.Context, caller models.Caller, roomID uuid.UUID, event string) error {
	if _, err := s.requireMember(ctx, roomID, caller.ID); err != nil {
		return err
	}
	s.hub.Broadcast(models.RoomChannel(roomID), event, TypingPayload{UserID: caller.ID}, caller.ConnID)
	return nil
}
