package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

const roomNotFound = "Chatroom not found"

const roomColumns = `id, name, kind, members, last_message_id, active_video_session, video_session_history,
	allow_video_sharing, max_video_participants, created_at, updated_at`

// RoomRepository handles chat room persistence.
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a room repository.
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	var kind string
	err := row.Scan(&r.ID, &r.Name, &kind, &r.Members, &r.LastMessage, &r.ActiveVideoSession, &r.VideoSessionHistory,
		&r.AllowVideoSharing, &r.MaxVideoParticipants, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Kind = models.RoomKind(kind)
	return &r, nil
}

// CreateRoom inserts a room and fills its ID and timestamps.
func (r *RoomRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO chat_rooms (name, kind, members, allow_video_sharing, max_video_participants)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, video_session_history, created_at, updated_at`
	if room.Members == nil {
		room.Members = []uuid.UUID{}
	}
	err := r.pool.QueryRow(ctx, q, room.Name, string(room.Kind), room.Members, room.AllowVideoSharing, room.MaxVideoParticipants).
		Scan(&room.ID, &room.VideoSessionHistory, &room.CreatedAt, &room.UpdatedAt)
	return apperr.Storage("create room", err)
}

// GetRoom returns a room by ID.
func (r *RoomRepository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get room", roomNotFound, err)
	}
	return room, nil
}

// ListRoomsByMember returns the rooms userID belongs to, most recently updated first.
func (r *RoomRepository) ListRoomsByMember(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM chat_rooms WHERE $1 = ANY(members) ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, apperr.Storage("list rooms", err)
	}
	defer rows.Close()

	var list []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, apperr.Storage("scan room", err)
		}
		list = append(list, *room)
	}
	return list, apperr.Storage("list rooms", rows.Err())
}

// AddRoomMember adds userID to the member set.
func (r *RoomRepository) AddRoomMember(ctx context.Context, roomID, userID uuid.UUID) error {
	const q = `UPDATE chat_rooms
		SET members = CASE WHEN $2 = ANY(members) THEN members ELSE array_append(members, $2) END,
			updated_at = NOW()
		WHERE id = $1`
	return r.execOne(ctx, "add room member", q, roomID, userID)
}

// SetLastMessage points the room at its newest message.
func (r *RoomRepository) SetLastMessage(ctx context.Context, roomID, messageID uuid.UUID) error {
	const q = `UPDATE chat_rooms SET last_message_id = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set last message", q, roomID, messageID)
}

// ActivateSession sets the active session and appends it to the history.
func (r *RoomRepository) ActivateSession(ctx context.Context, roomID, sessionID uuid.UUID) error {
	const q = `UPDATE chat_rooms
		SET active_video_session = $2,
			video_session_history = array_append(video_session_history, $2),
			updated_at = NOW()
		WHERE id = $1`
	return r.execOne(ctx, "activate session", q, roomID, sessionID)
}

// ClearActiveSession clears the active session only if it still points at sessionID.
func (r *RoomRepository) ClearActiveSession(ctx context.Context, roomID, sessionID uuid.UUID) error {
	const q = `UPDATE chat_rooms SET active_video_session = NULL, updated_at = NOW()
		WHERE id = $1 AND active_video_session = $2`
	_, err := r.pool.Exec(ctx, q, roomID, sessionID)
	return apperr.Storage("clear active session", err)
}

func (r *RoomRepository) execOne(ctx context.Context, op, q string, args ...any) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return apperr.Storage(op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(roomNotFound)
	}
	return nil
}
