// Package store declares the persistence ports used by the core services.
// Implementations live in store/postgres and store/memory.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cognita/watchparty/internal/models"
)

// Rooms persists chat rooms. Lookups of missing rooms return apperr.ErrNotFound.
type Rooms interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRoomsByMember(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error
	SetLastMessage(ctx context.Context, roomID, messageID uuid.UUID) error
	// ActivateSession sets the room's active session and appends it to history.
	ActivateSession(ctx context.Context, roomID, sessionID uuid.UUID) error
	// ClearActiveSession clears the active session only if it still equals sessionID.
	ClearActiveSession(ctx context.Context, roomID, sessionID uuid.UUID) error
}

// Messages is the append-only message log.
type Messages interface {
	// AppendMessage assigns ID and CreatedAt.
	AppendMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// ListMessages returns a room's messages newest first.
	ListMessages(ctx context.Context, roomID uuid.UUID, offset, limit int) ([]models.Message, error)
	// MarkRead adds userID to readBy; it never removes.
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
}

// Sessions persists video sessions.
type Sessions interface {
	// CreateSession assigns ID, CreatedAt and UpdatedAt.
	CreateSession(ctx context.Context, s *models.VideoSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.VideoSession, error)
	// SaveSession replaces the mutable fields of an existing session.
	SaveSession(ctx context.Context, s *models.VideoSession) error
	// EndSession marks a session inactive if it is still active.
	EndSession(ctx context.Context, id uuid.UUID, at time.Time) error
	// ListSessions returns a room's sessions newest first and the total count.
	ListSessions(ctx context.Context, roomID uuid.UUID, offset, limit int) ([]models.VideoSession, int, error)
}

// Users reads the external user store.
type Users interface {
	ResolveUsers(ctx context.Context, ids []uuid.UUID) (models.UserDirectory, error)
	// UpsertUser mirrors the public fields of an authenticated identity.
	UpsertUser(ctx context.Context, id models.Identity) error
}

// Store groups the persistence ports.
type Store struct {
	Rooms    Rooms
	Messages Messages
	Sessions Sessions
	Users    Users
}
