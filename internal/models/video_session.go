package models

import (
	"time"

	"github.com/google/uuid"
)

// PlaybackState is the authoritative playback clock mirrored to clients.
type PlaybackState struct {
	IsPlaying    bool    `json:"isPlaying"`
	CurrentTime  float64 `json:"currentTime"`
	PlaybackRate float64 `json:"playbackRate"`
	Volume       float64 `json:"volume"`
	IsMuted      bool    `json:"isMuted"`
}

// DefaultPlayback is the state of a freshly started session.
func DefaultPlayback() PlaybackState {
	return PlaybackState{PlaybackRate: 1, Volume: 1}
}

// VideoSession is one group watching session within a room.
// IsActive=false is terminal.
type VideoSession struct {
	ID           uuid.UUID   `json:"_id"`
	RoomID       uuid.UUID   `json:"chatroom"`
	HostID       uuid.UUID   `json:"host"`
	Participants []uuid.UUID `json:"participants"`
	VideoURL     string      `json:"videoUrl"`
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	PlaybackState

	LastSyncTime time.Time `json:"lastSyncTime"`
	SyncEnabled  bool      `json:"syncEnabled"`

	IsActive  bool       `json:"isActive"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	AllowUserControl bool       `json:"allowUserControl"`
	ControlLockedBy  *uuid.UUID `json:"controlLockedBy,omitempty"`

	EnableVideoChat bool `json:"enableVideoChat"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasParticipant reports whether userID is in the participant set.
func (s *VideoSession) HasParticipant(userID uuid.UUID) bool {
	for _, p := range s.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// AddParticipant adds userID with set semantics and reports whether it was added.
func (s *VideoSession) AddParticipant(userID uuid.UUID) bool {
	if s.HasParticipant(userID) {
		return false
	}
	s.Participants = append(s.Participants, userID)
	return true
}

// RemoveParticipant removes userID and reports whether it was present.
func (s *VideoSession) RemoveParticipant(userID uuid.UUID) bool {
	for i, p := range s.Participants {
		if p == userID {
			s.Participants = append(s.Participants[:i:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// CanControl reports whether userID may issue playback-control commands.
// When control is locked, only the host or the lock holder may; when user
// control is disabled, only the host may.
func (s *VideoSession) CanControl(userID uuid.UUID) bool {
	if userID == s.HostID {
		return true
	}
	if s.ControlLockedBy != nil {
		return *s.ControlLockedBy == userID
	}
	return s.AllowUserControl
}

// End marks the session inactive. It reports false if it was already ended.
func (s *VideoSession) End(at time.Time) bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	s.EndedAt = &at
	s.UpdatedAt = at
	return true
}

// Clone returns a deep copy so a failed persistence step can be rolled back.
func (s *VideoSession) Clone() *VideoSession {
	c := *s
	c.Participants = append([]uuid.UUID(nil), s.Participants...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.ControlLockedBy != nil {
		id := *s.ControlLockedBy
		c.ControlLockedBy = &id
	}
	return &c
}

// Snapshot is the reply to a sync request.
type Snapshot struct {
	PlaybackState
	Timestamp int64 `json:"timestamp"`
}

// VideoSessionView is a session with host and participants populated.
type VideoSessionView struct {
	VideoSession
	Host         UserPublic   `json:"host"`
	Participants []UserPublic `json:"participants"`
}

// View populates host and participants from dir.
func (s *VideoSession) View(dir UserDirectory) VideoSessionView {
	v := VideoSessionView{VideoSession: *s, Host: dir.Lookup(s.HostID)}
	v.Participants = make([]UserPublic, 0, len(s.Participants))
	for _, p := range s.Participants {
		v.Participants = append(v.Participants, dir.Lookup(p))
	}
	return v
}

// VideoSessionSummary is a history entry with only the host populated.
type VideoSessionSummary struct {
	VideoSession
	Host UserPublic `json:"host"`
}
