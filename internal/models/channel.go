package models

import "github.com/google/uuid"

// Outbound real-time event names.
const (
	EventNewMessage           = "newMessage"
	EventUserTyping           = "userTyping"
	EventUserStoppedTyping    = "userStoppedTyping"
	EventUserJoinedVideo      = "userJoinedVideo"
	EventUserLeftVideo        = "userLeftVideo"
	EventVideoSessionJoined   = "videoSessionJoined"
	EventVideoSessionStarted  = "videoSessionStarted"
	EventVideoSessionEnded    = "videoSessionEnded"
	EventVideoSettingsUpdated = "videoSettingsUpdated"
	EventVideoPlay            = "videoPlay"
	EventVideoPause           = "videoPause"
	EventVideoSeek            = "videoSeek"
	EventVideoVolumeChange    = "videoVolumeChange"
	EventVideoRateChange      = "videoRateChange"
	EventVideoSync            = "videoSync"
	EventVideoError           = "videoError"
	EventError                = "error"
)

// RoomChannel is the broadcast group for a room's chat traffic.
func RoomChannel(roomID uuid.UUID) string { return roomID.String() }

// VideoChannel is the broadcast group for a room's playback-sync traffic.
func VideoChannel(roomID uuid.UUID) string { return roomID.String() + "-video" }

// Caller is the identity behind a command and, for real-time commands, the
// connection it arrived on. ConnID is uuid.Nil for HTTP requests.
type Caller struct {
	Identity
	ConnID uuid.UUID
}
