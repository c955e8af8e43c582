package models

import (
	"time"

	"github.com/google/uuid"
)

// RoomKind is the visibility of a chat room.
type RoomKind string

const (
	RoomPrivate RoomKind = "private"
	RoomPublic  RoomKind = "public"
)

// DefaultMaxVideoParticipants is used when a room is created without an explicit cap.
const DefaultMaxVideoParticipants = 50

// Room is a chat room. A room has at most one active video session.
type Room struct {
	ID                   uuid.UUID   `json:"_id"`
	Name                 string      `json:"name"`
	Kind                 RoomKind    `json:"type"`
	Members              []uuid.UUID `json:"members"`
	LastMessage          *uuid.UUID  `json:"lastMessage,omitempty"`
	ActiveVideoSession   *uuid.UUID  `json:"activeVideoSession"`
	VideoSessionHistory  []uuid.UUID `json:"videoSessionHistory"`
	AllowVideoSharing    bool        `json:"allowVideoSharing"`
	MaxVideoParticipants int         `json:"maxVideoParticipants"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

// IsMember reports whether userID is in the room's member list.
func (r *Room) IsMember(userID uuid.UUID) bool {
	for _, m := range r.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// RoomView is a room with members and last message populated for API responses.
type RoomView struct {
	Room
	Members     []UserPublic `json:"members"`
	LastMessage *MessageView `json:"lastMessage,omitempty"`
}

// RoomSettings is the video-related policy of a room.
type RoomSettings struct {
	AllowVideoSharing    bool `json:"allowVideoSharing"`
	MaxVideoParticipants int  `json:"maxVideoParticipants"`
}

// Settings returns the room's video policy.
func (r *Room) Settings() RoomSettings {
	return RoomSettings{AllowVideoSharing: r.AllowVideoSharing, MaxVideoParticipants: r.MaxVideoParticipants}
}
