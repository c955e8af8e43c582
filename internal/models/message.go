package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind distinguishes chat text from video system and event entries.
type MessageKind string

const (
	MessageText         MessageKind = "text"
	MessageVideoSession MessageKind = "videoSession"
	MessageVideoEvent   MessageKind = "videoEvent"
)

// VideoEventType is the type tag of a logged video event.
type VideoEventType string

const (
	EventPlay   VideoEventType = "play"
	EventPause  VideoEventType = "pause"
	EventSeek   VideoEventType = "seek"
	EventVolume VideoEventType = "volume"
	EventRate   VideoEventType = "rate"
	EventJoin   VideoEventType = "join"
	EventLeave  VideoEventType = "leave"
)

// VideoEvent is the payload embedded in a videoEvent message.
type VideoEvent struct {
	Type      VideoEventType  `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Message is an append-only log entry owned by exactly one room.
// Only ReadBy may grow after creation.
type Message struct {
	ID             uuid.UUID   `json:"_id"`
	RoomID         uuid.UUID   `json:"room"`
	SenderID       uuid.UUID   `json:"sender"`
	Kind           MessageKind `json:"messageType"`
	Content        string      `json:"content,omitempty"`
	VideoSessionID *uuid.UUID  `json:"videoSessionId,omitempty"`
	VideoEvent     *VideoEvent `json:"videoEvent,omitempty"`
	ReadBy         []uuid.UUID `json:"readBy"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// MessageView is a message with its sender populated.
type MessageView struct {
	Message
	Sender UserPublic `json:"sender"`
}

// View populates the sender from dir.
func (m Message) View(dir UserDirectory) MessageView {
	return MessageView{Message: m, Sender: dir.Lookup(m.SenderID)}
}
