// Package video is the authoritative state machine for a room's group video
// session. Every mutation of a room's session runs on that room's serial
// queue as one read-modify-persist-broadcast unit.
package video

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/roomqueue"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
)

// Broadcaster delivers events to channels and single connections.
type Broadcaster interface {
	Broadcast(channel, event string, payload interface{}, exclude uuid.UUID)
	ChannelCount(channel string) int
}

const (
	msgNoActiveSession = "No active video session found"
	msgNotMember       = "You are not a member of this chatroom"
)

// StartRequest describes the media for a new session.
type StartRequest struct {
	VideoURL        string `json:"videoUrl" binding:"required"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	EnableVideoChat bool   `json:"enableVideoChat"`
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	AllowUserControl   *bool      `json:"allowUserControl"`
	SyncEnabled        *bool      `json:"syncEnabled"`
	EnableVideoChat    *bool      `json:"enableVideoChat"`
	ControlLockedBy    *uuid.UUID `json:"controlLockedBy"`
	ReleaseControlLock bool       `json:"releaseControlLock"`
}

// Current is the room's active session, if any, with the room's video policy.
type Current struct {
	VideoSession     *models.VideoSessionView `json:"videoSession"`
	ChatroomSettings models.RoomSettings      `json:"chatroomSettings"`
	ConnectedViewers int                      `json:"connectedViewers"`
}

// EndedPayload is broadcast on videoSessionEnded.
type EndedPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	Timestamp int64     `json:"timestamp"`
}

// LeaveResult reports what a leave did.
type LeaveResult struct {
	Left  bool `json:"left"`
	Ended bool `json:"ended"`
}

// Service runs the video session state machine.
type Service struct {
	rooms    store.Rooms
	sessions store.Sessions
	users    store.Users
	history  *history.Service
	queue    *roomqueue.Serializer
	hub      Broadcaster
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a video service.
func NewService(st store.Store, hist *history.Service, queue *roomqueue.Serializer, hub Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		rooms:    st.Rooms,
		sessions: st.Sessions,
		users:    st.Users,
		history:  hist,
		queue:    queue,
		hub:      hub,
		logger:   logger,
		now:      time.Now,
	}
}

// active loads the room and its active session. The session is nil when the
// room is Absent.
func (s *Service) active(ctx context.Context, roomID uuid.UUID) (*models.Room, *models.VideoSession, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if room.ActiveVideoSession == nil {
		return room, nil, nil
	}
	vs, err := s.sessions.GetSession(ctx, *room.ActiveVideoSession)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return room, nil, nil
		}
		return nil, nil, err
	}
	if !vs.IsActive {
		return room, nil, nil
	}
	return room, vs, nil
}

func (s *Service) view(ctx context.Context, vs *models.VideoSession) *models.VideoSessionView {
	ids := append([]uuid.UUID{vs.HostID}, vs.Participants...)
	dir, err := s.users.ResolveUsers(ctx, ids)
	if err != nil {
		s.logger.Warn("resolve session users failed", zap.Error(err), zap.String("session_id", vs.ID.String()))
	}
	v := vs.View(dir)
	return &v
}

// logEvent appends a videoEvent entry for the session.
func (s *Service) logEvent(ctx context.Context, vs *models.VideoSession, userID uuid.UUID, content string, ev models.VideoEvent) error {
	id := vs.ID
	_, err := s.history.Append(ctx, &models.Message{
		RoomID:         vs.RoomID,
		SenderID:       userID,
		Kind:           models.MessageVideoEvent,
		Content:        content,
		VideoSessionID: &id,
		VideoEvent:     &ev,
	})
	return err
}

// announce appends a videoSession system message and shows it to the room.
// The transition it describes is already durable, so a failure is logged and
// only the announcement is skipped.
func (s *Service) announce(ctx context.Context, vs *models.VideoSession, userID uuid.UUID, content string) {
	id := vs.ID
	msg, err := s.history.Append(ctx, &models.Message{
		RoomID:         vs.RoomID,
		SenderID:       userID,
		Kind:           models.MessageVideoSession,
		Content:        content,
		VideoSessionID: &id,
	})
	if err != nil {
		s.logger.Error("append video session message failed", zap.Error(err),
			zap.String("room_id", vs.RoomID.String()), zap.String("session_id", vs.ID.String()))
		return
	}
	s.hub.Broadcast(models.RoomChannel(vs.RoomID), models.EventNewMessage, msg, uuid.Nil)
}

// rollback restores prev after a later persistence step failed.
func (s *Service) rollback(ctx context.Context, prev *models.VideoSession, cause error) {
	if err := s.sessions.SaveSession(ctx, prev); err != nil {
		s.logger.Error("video session rollback failed", zap.Error(err), zap.NamedError("cause", cause),
			zap.String("session_id", prev.ID.String()))
	}
}

// Start ends any active session in the room and starts a new one hosted by caller.
func (s *Service) Start(ctx context.Context, caller models.Caller, roomID uuid.UUID, req StartRequest) (*models.VideoSessionView, error) {
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if req.VideoURL == "" {
		return nil, apperr.Validation("videoUrl is required")
	}

	var out *models.VideoSessionView
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		room, prev, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if !room.IsMember(caller.ID) {
			return apperr.Permission(msgNotMember)
		}
		if !room.AllowVideoSharing {
			return apperr.Permission("Video sharing is not allowed in this chatroom")
		}

		// A stale pointer is overwritten by ActivateSession below.
		now := s.now()
		if prev != nil {
			if err := s.sessions.EndSession(ctx, prev.ID, now); err != nil {
				return err
			}
			s.hub.Broadcast(models.VideoChannel(roomID), models.EventVideoSessionEnded,
				EndedPayload{SessionID: prev.ID, UserID: caller.ID, Timestamp: now.UnixMilli()}, uuid.Nil)
		}

		vs := &models.VideoSession{
			RoomID:           roomID,
			HostID:           caller.ID,
			Participants:     []uuid.UUID{caller.ID},
			VideoURL:         req.VideoURL,
			Title:            req.Title,
			Description:      req.Description,
			PlaybackState:    models.DefaultPlayback(),
			LastSyncTime:     now,
			SyncEnabled:      true,
			IsActive:         true,
			StartedAt:        now,
			AllowUserControl: true,
			EnableVideoChat:  req.EnableVideoChat,
		}
		if err := s.sessions.CreateSession(ctx, vs); err != nil {
			return err
		}
		if err := s.rooms.ActivateSession(ctx, roomID, vs.ID); err != nil {
			if endErr := s.sessions.EndSession(ctx, vs.ID, now); endErr != nil {
				s.logger.Error("end orphaned video session failed", zap.Error(endErr), zap.String("session_id", vs.ID.String()))
			}
			return err
		}

		title := req.Title
		if title == "" {
			title = "Untitled Video"
		}
		s.announce(ctx, vs, caller.ID, "Started video session: "+title)

		out = s.view(ctx, vs)
		s.hub.Broadcast(models.RoomChannel(roomID), models.EventVideoSessionStarted, out, uuid.Nil)
		s.logger.Info("video session started", zap.String("room_id", roomID.String()),
			zap.String("session_id", vs.ID.String()), zap.String("user_id", caller.ID.String()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Join adds caller to the active session's participants. Joining twice is a no-op.
func (s *Service) Join(ctx context.Context, caller models.Caller, roomID uuid.UUID) (*models.VideoSessionView, error) {
	var out *models.VideoSessionView
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		room, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil {
			return apperr.NotFound(msgNoActiveSession)
		}
		if !room.IsMember(caller.ID) {
			return apperr.Permission(msgNotMember)
		}

		if !vs.HasParticipant(caller.ID) {
			if max := room.MaxVideoParticipants; max > 0 && len(vs.Participants) >= max {
				return apperr.Permission("Video session is full")
			}
			prev := vs.Clone()
			now := s.now()
			vs.AddParticipant(caller.ID)
			vs.UpdatedAt = now
			if err := s.sessions.SaveSession(ctx, vs); err != nil {
				return err
			}
			ev := models.VideoEvent{Type: models.EventJoin, Timestamp: now.UnixMilli()}
			if err := s.logEvent(ctx, vs, caller.ID, "Joined the video session", ev); err != nil {
				s.rollback(ctx, prev, err)
				return err
			}
		}
		out = s.view(ctx, vs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Leave removes caller from the active session. When the last participant
// leaves, the session ends and the room's active reference is cleared.
// Leaving when absent or not a participant succeeds without effect.
func (s *Service) Leave(ctx context.Context, caller models.Caller, roomID uuid.UUID) (LeaveResult, error) {
	var res LeaveResult
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		_, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil {
			return nil
		}

		prev := vs.Clone()
		if !vs.RemoveParticipant(caller.ID) {
			return nil
		}
		now := s.now()
		vs.UpdatedAt = now
		ended := len(vs.Participants) == 0 && vs.End(now)
		if err := s.sessions.SaveSession(ctx, vs); err != nil {
			return err
		}
		ev := models.VideoEvent{Type: models.EventLeave, Timestamp: now.UnixMilli()}
		if err := s.logEvent(ctx, vs, caller.ID, "Left the video session", ev); err != nil {
			s.rollback(ctx, prev, err)
			return err
		}
		res = LeaveResult{Left: true, Ended: ended}
		if !ended {
			return nil
		}

		if err := s.rooms.ClearActiveSession(ctx, roomID, vs.ID); err != nil {
			// The session is already ended; a stale room pointer to an ended
			// session reads as Absent.
			s.logger.Error("clear active session failed", zap.Error(err), zap.String("room_id", roomID.String()))
		}
		s.hub.Broadcast(models.VideoChannel(roomID), models.EventVideoSessionEnded,
			EndedPayload{SessionID: vs.ID, UserID: caller.ID, Timestamp: now.UnixMilli()}, uuid.Nil)
		s.logger.Info("video session ended by last participant", zap.String("room_id", roomID.String()),
			zap.String("session_id", vs.ID.String()))
		return nil
	})
	return res, err
}

// Control applies a playback command. It reports false without error when the
// room has no active session or synchronization is disabled.
func (s *Service) Control(ctx context.Context, caller models.Caller, roomID uuid.UUID, cmd Control) (bool, error) {
	if err := cmd.validate(); err != nil {
		return false, err
	}

	applied := false
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		room, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil || !vs.SyncEnabled {
			return nil
		}
		if !room.IsMember(caller.ID) {
			return apperr.Permission(msgNotMember)
		}
		if !vs.CanControl(caller.ID) {
			if vs.ControlLockedBy != nil {
				return apperr.Permission("Playback control is locked")
			}
			return apperr.Permission("Only the host can control playback")
		}

		prev := vs.Clone()
		now := s.now()
		cmd.apply(&vs.PlaybackState)
		vs.LastSyncTime = now
		vs.UpdatedAt = now
		if err := s.sessions.SaveSession(ctx, vs); err != nil {
			return err
		}
		ev := models.VideoEvent{Type: cmd.Type(), Data: eventData(cmd), Timestamp: now.UnixMilli()}
		if err := s.logEvent(ctx, vs, caller.ID, "", ev); err != nil {
			s.rollback(ctx, prev, err)
			return err
		}
		s.hub.Broadcast(models.VideoChannel(roomID), cmd.Event(), cmd.broadcast(caller.ID, now.UnixMilli()), caller.ConnID)
		applied = true
		return nil
	})
	return applied, err
}

// RequestSync returns the current playback snapshot for caller alone.
func (s *Service) RequestSync(ctx context.Context, caller models.Caller, roomID uuid.UUID) (*models.Snapshot, error) {
	var out *models.Snapshot
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		room, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil {
			return apperr.NotFound(msgNoActiveSession)
		}
		if !room.IsMember(caller.ID) {
			return apperr.Permission(msgNotMember)
		}
		out = &models.Snapshot{PlaybackState: vs.PlaybackState, Timestamp: s.now().UnixMilli()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// End ends the active session. Only the host may end it.
func (s *Service) End(ctx context.Context, caller models.Caller, roomID uuid.UUID) error {
	return s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		_, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil {
			return apperr.NotFound(msgNoActiveSession)
		}
		if vs.HostID != caller.ID {
			return apperr.Permission("Only the host can end the video session")
		}

		prev := vs.Clone()
		now := s.now()
		vs.End(now)
		if err := s.sessions.SaveSession(ctx, vs); err != nil {
			return err
		}
		if err := s.rooms.ClearActiveSession(ctx, roomID, vs.ID); err != nil {
			s.rollback(ctx, prev, err)
			return err
		}

		s.hub.Broadcast(models.VideoChannel(roomID), models.EventVideoSessionEnded,
			EndedPayload{SessionID: vs.ID, UserID: caller.ID, Timestamp: now.UnixMilli()}, uuid.Nil)
		s.announce(ctx, vs, caller.ID, "Video session ended")
		s.logger.Info("video session ended", zap.String("room_id", roomID.String()),
			zap.String("session_id", vs.ID.String()), zap.String("user_id", caller.ID.String()))
		return nil
	})
}

// UpdateSettings applies a partial settings update. Only the host may update.
func (s *Service) UpdateSettings(ctx context.Context, caller models.Caller, roomID uuid.UUID, upd SettingsUpdate) (*models.VideoSessionView, error) {
	var out *models.VideoSessionView
	err := s.queue.Do(ctx, roomID, func(ctx context.Context) error {
		_, vs, err := s.active(ctx, roomID)
		if err != nil {
			return err
		}
		if vs == nil {
			return apperr.NotFound(msgNoActiveSession)
		}
		if vs.HostID != caller.ID {
			return apperr.Permission("Only the host can update session settings")
		}
		if upd.ControlLockedBy != nil && !vs.HasParticipant(*upd.ControlLockedBy) {
			return apperr.Validation("controlLockedBy must be a participant")
		}

		if upd.AllowUserControl != nil {
			vs.AllowUserControl = *upd.AllowUserControl
		}
		if upd.SyncEnabled != nil {
			vs.SyncEnabled = *upd.SyncEnabled
		}
		if upd.EnableVideoChat != nil {
			vs.EnableVideoChat = *upd.EnableVideoChat
		}
		if upd.ReleaseControlLock {
			vs.ControlLockedBy = nil
		}
		if upd.ControlLockedBy != nil {
			holder := *upd.ControlLockedBy
			vs.ControlLockedBy = &holder
		}
		vs.UpdatedAt = s.now()
		if err := s.sessions.SaveSession(ctx, vs); err != nil {
			return err
		}

		out = s.view(ctx, vs)
		s.hub.Broadcast(models.VideoChannel(roomID), models.EventVideoSettingsUpdated, out, uuid.Nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Current returns the room's active session, if any, and its video policy.
func (s *Service) Current(ctx context.Context, roomID uuid.UUID) (*Current, error) {
	room, vs, err := s.active(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := &Current{
		ChatroomSettings: room.Settings(),
		ConnectedViewers: s.hub.ChannelCount(models.VideoChannel(roomID)),
	}
	if vs != nil {
		out.VideoSession = s.view(ctx, vs)
	}
	return out, nil
}
