package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

const sessionNotFound = "Video session not found"

const sessionColumns = `id, room_id, host_id, participants, video_url, title, description,
	is_playing, current_time_sec, playback_rate, volume, is_muted, last_sync_time, sync_enabled,
	is_active, started_at, ended_at, allow_user_control, control_locked_by, enable_video_chat,
	created_at, updated_at`

// SessionRepository handles video session persistence.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a video session repository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*models.VideoSession, error) {
	var s models.VideoSession
	err := row.Scan(&s.ID, &s.RoomID, &s.HostID, &s.Participants, &s.VideoURL, &s.Title, &s.Description,
		&s.IsPlaying, &s.CurrentTime, &s.PlaybackRate, &s.Volume, &s.IsMuted, &s.LastSyncTime, &s.SyncEnabled,
		&s.IsActive, &s.StartedAt, &s.EndedAt, &s.AllowUserControl, &s.ControlLockedBy, &s.EnableVideoChat,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a session and fills its ID and timestamps.
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.VideoSession) error {
	const q = `INSERT INTO video_sessions (room_id, host_id, participants, video_url, title, description,
			is_playing, current_time_sec, playback_rate, volume, is_muted, last_sync_time, sync_enabled,
			is_active, started_at, allow_user_control, control_locked_by, enable_video_chat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.RoomID, s.HostID, s.Participants, s.VideoURL, s.Title, s.Description,
		s.IsPlaying, s.CurrentTime, s.PlaybackRate, s.Volume, s.IsMuted, s.LastSyncTime, s.SyncEnabled,
		s.IsActive, s.StartedAt, s.AllowUserControl, s.ControlLockedBy, s.EnableVideoChat).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return apperr.Storage("create video session", err)
}

// GetSession returns a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.VideoSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM video_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get video session", sessionNotFound, err)
	}
	return s, nil
}

// SaveSession writes back every mutable field of s.
func (r *SessionRepository) SaveSession(ctx context.Context, s *models.VideoSession) error {
	const q = `UPDATE video_sessions SET host_id = $2, participants = $3,
			is_playing = $4, current_time_sec = $5, playback_rate = $6, volume = $7, is_muted = $8,
			last_sync_time = $9, sync_enabled = $10, is_active = $11, ended_at = $12,
			allow_user_control = $13, control_locked_by = $14, enable_video_chat = $15, updated_at = $16
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, s.ID, s.HostID, s.Participants,
		s.IsPlaying, s.CurrentTime, s.PlaybackRate, s.Volume, s.IsMuted,
		s.LastSyncTime, s.SyncEnabled, s.IsActive, s.EndedAt,
		s.AllowUserControl, s.ControlLockedBy, s.EnableVideoChat, s.UpdatedAt)
	if err != nil {
		return apperr.Storage("save video session", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(sessionNotFound)
	}
	return nil
}

// EndSession marks the session ended if it is still active.
func (r *SessionRepository) EndSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE video_sessions SET is_active = FALSE, ended_at = $2, updated_at = $2
		WHERE id = $1 AND is_active`
	_, err := r.pool.Exec(ctx, q, id, at)
	return apperr.Storage("end video session", err)
}

// ListSessions returns a page of a room's sessions newest first and the total count.
func (r *SessionRepository) ListSessions(ctx context.Context, roomID uuid.UUID, offset, limit int) ([]models.VideoSession, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM video_sessions WHERE room_id = $1`, roomID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("count video sessions", err)
	}

	const q = `SELECT ` + sessionColumns + ` FROM video_sessions WHERE room_id = $1
		ORDER BY created_at DESC, seq DESC OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, q, roomID, offset, limit)
	if err != nil {
		return nil, 0, apperr.Storage("list video sessions", err)
	}
	defer rows.Close()

	list := make([]models.VideoSession, 0, limit)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, apperr.Storage("scan video session", err)
		}
		list = append(list, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage("list video sessions", err)
	}
	return list, total, nil
}
