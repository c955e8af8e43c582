package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/chat"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/internal/video"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Inbound command names.
const (
	CmdJoinRoom          = "joinRoom"
	CmdLeaveRoom         = "leaveRoom"
	CmdSendMessage       = "sendMessage"
	CmdTyping            = "typing"
	CmdStopTyping        = "stopTyping"
	CmdJoinVideoSession  = "joinVideoSession"
	CmdLeaveVideoSession = "leaveVideoSession"
	CmdVideoPlay         = "videoPlay"
	CmdVideoPause        = "videoPause"
	CmdVideoSeek         = "videoSeek"
	CmdVideoVolume       = "videoVolumeChange"
	CmdVideoRate         = "videoRateChange"
	CmdRequestVideoSync  = "requestVideoSync"
)

// ErrorPayload is sent on the error event for failed chat and room commands.
type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// VideoErrorPayload is sent on videoError.
type VideoErrorPayload struct {
	Message string `json:"message"`
}

// commandPayload is the union of inbound payload fields.
type commandPayload struct {
	RoomID    string   `json:"roomId"`
	Content   string   `json:"content"`
	Timestamp *float64 `json:"timestamp"`
	Volume    *float64 `json:"volume"`
	Rate      *float64 `json:"rate"`
}

// Dispatcher routes inbound commands to the chat and video services and
// reports failures to the originating connection only.
type Dispatcher struct {
	hub    *Hub
	chat   *chat.Service
	video  *video.Service
	users  store.Users
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(hub *Hub, chatSvc *chat.Service, videoSvc *video.Service, users store.Users, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, chat: chatSvc, video: videoSvc, users: users, logger: logger}
}

// Connected mirrors the identity of a newly authenticated connection into
// the user store so senders and participants resolve to names.
func (d *Dispatcher) Connected(ctx context.Context, id models.Identity) {
	if d.users == nil {
		return
	}
	if err := d.users.UpsertUser(ctx, id); err != nil {
		d.logger.Warn("upsert user failed", zap.Error(err), zap.String("user_id", id.ID.String()))
	}
}

// decode accepts either {"roomId": ...} or a bare room id string.
func decode(data json.RawMessage) (commandPayload, uuid.UUID, error) {
	var p commandPayload
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		if err := json.Unmarshal(data, &p.RoomID); err != nil {
			return p, uuid.Nil, apperr.Validation("invalid payload")
		}
	} else if len(trimmed) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return p, uuid.Nil, apperr.Validation("invalid payload")
		}
	}
	if p.RoomID == "" {
		return p, uuid.Nil, apperr.Validation("roomId is required")
	}
	roomID, err := uuid.Parse(p.RoomID)
	if err != nil {
		return p, uuid.Nil, apperr.Validation("invalid roomId")
	}
	return p, roomID, nil
}

func control(event string, p commandPayload) (video.Control, error) {
	switch event {
	case CmdVideoPlay, CmdVideoPause, CmdVideoSeek:
		if p.Timestamp == nil {
			return nil, apperr.Validation("timestamp is required")
		}
		switch event {
		case CmdVideoPlay:
			return video.Play{Position: *p.Timestamp}, nil
		case CmdVideoPause:
			return video.Pause{Position: *p.Timestamp}, nil
		default:
			return video.Seek{Position: *p.Timestamp}, nil
		}
	case CmdVideoVolume:
		if p.Volume == nil {
			return nil, apperr.Validation("volume is required")
		}
		return video.Volume{Level: *p.Volume}, nil
	case CmdVideoRate:
		if p.Rate == nil {
			return nil, apperr.Validation("rate is required")
		}
		return video.Rate{Rate: *p.Rate}, nil
	}
	return nil, apperr.Validation("unknown control")
}

func isVideoCommand(event string) bool {
	switch event {
	case CmdJoinVideoSession, CmdLeaveVideoSession, CmdVideoPlay, CmdVideoPause, CmdVideoSeek,
		CmdVideoVolume, CmdVideoRate, CmdRequestVideoSync:
		return true
	}
	return false
}

// Dispatch runs one inbound command for c.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, msg WSMessage) {
	if err := d.dispatch(ctx, c, msg); err != nil {
		d.fail(c, msg.Event, err)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Client, msg WSMessage) error {
	switch msg.Event {
	case CmdJoinRoom, CmdLeaveRoom, CmdSendMessage, CmdTyping, CmdStopTyping:
	default:
		if !isVideoCommand(msg.Event) {
			return apperr.Validation("unknown event")
		}
	}

	p, roomID, err := decode(msg.Data)
	if err != nil {
		return err
	}
	caller := c.Caller()

	switch msg.Event {
	case CmdJoinRoom:
		d.hub.JoinRoom(c, roomID)
		return nil
	case CmdLeaveRoom:
		d.hub.LeaveRoom(c, roomID)
		return nil
	case CmdSendMessage:
		_, err := d.chat.SendMessage(ctx, caller, roomID, p.Content)
		return err
	case CmdTyping:
		return d.chat.Typing(ctx, caller, roomID)
	case CmdStopTyping:
		return d.chat.StopTyping(ctx, caller, roomID)

	case CmdJoinVideoSession:
		vs, err := d.video.Join(ctx, caller, roomID)
		if err != nil {
			return err
		}
		d.hub.JoinVideo(c, roomID)
		d.hub.SendTo(c.ID, models.EventVideoSessionJoined, vs)
		return nil
	case CmdLeaveVideoSession:
		if _, err := d.video.Leave(ctx, caller, roomID); err != nil {
			return err
		}
		d.hub.LeaveVideo(c, roomID)
		return nil
	case CmdRequestVideoSync:
		snap, err := d.video.RequestSync(ctx, caller, roomID)
		if err != nil {
			return err
		}
		d.hub.SendTo(c.ID, models.EventVideoSync, snap)
		return nil
	default:
		cmd, err := control(msg.Event, p)
		if err != nil {
			return err
		}
		_, err = d.video.Control(ctx, caller, roomID, cmd)
		return err
	}
}

func (d *Dispatcher) fail(c *Client, event string, err error) {
	fields := []zap.Field{zap.Error(err), zap.String("event", event), zap.String("conn_id", c.ID.String()),
		zap.String("user_id", c.Identity.ID.String())}
	switch apperr.KindOf(err) {
	case apperr.KindStorage, apperr.KindUnknown:
		d.logger.Error("command failed", fields...)
	default:
		d.logger.Warn("command rejected", fields...)
	}

	msg := apperr.PublicMessage(err)
	if isVideoCommand(event) {
		d.hub.SendTo(c.ID, models.EventVideoError, VideoErrorPayload{Message: msg})
		return
	}
	d.hub.SendTo(c.ID, models.EventError, ErrorPayload{Event: event, Message: msg})
}
