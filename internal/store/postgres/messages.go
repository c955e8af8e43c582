package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
)

const messageColumns = `id, room_id, sender_id, kind, content, video_session_id, video_event, read_by, created_at`

// MessageRepository handles the message log.
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a message repository.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var kind string
	var event []byte
	if err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &kind, &m.Content, &m.VideoSessionID, &event, &m.ReadBy, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Kind = models.MessageKind(kind)
	if len(event) > 0 {
		m.VideoEvent = new(models.VideoEvent)
		if err := json.Unmarshal(event, m.VideoEvent); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// AppendMessage inserts a message and fills its ID and creation time.
func (r *MessageRepository) AppendMessage(ctx context.Context, m *models.Message) error {
	var event []byte
	if m.VideoEvent != nil {
		b, err := json.Marshal(m.VideoEvent)
		if err != nil {
			return apperr.Storage("encode video event", err)
		}
		event = b
	}
	if m.ReadBy == nil {
		m.ReadBy = []uuid.UUID{}
	}
	const q = `INSERT INTO messages (room_id, sender_id, kind, content, video_session_id, video_event, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, m.RoomID, m.SenderID, string(m.Kind), m.Content, m.VideoSessionID, event, m.ReadBy).
		Scan(&m.ID, &m.CreatedAt)
	return apperr.Storage("append message", err)
}

// GetMessage returns a message by ID.
func (r *MessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get message", "Message not found", err)
	}
	return m, nil
}

// ListMessages returns a page of a room's messages, newest first.
func (r *MessageRepository) ListMessages(ctx context.Context, roomID uuid.UUID, offset, limit int) ([]models.Message, error) {
	const q = `SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1
		ORDER BY created_at DESC, seq DESC OFFSET $2 LIMIT $3`
	rows, err := r.pool.Query(ctx, q, roomID, offset, limit)
	if err != nil {
		return nil, apperr.Storage("list messages", err)
	}
	defer rows.Close()

	list := make([]models.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, apperr.Storage("scan message", err)
		}
		list = append(list, *m)
	}
	return list, apperr.Storage("list messages", rows.Err())
}

// MarkRead adds userID to the message's readBy set.
func (r *MessageRepository) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	const q = `UPDATE messages
		SET read_by = CASE WHEN $2 = ANY(read_by) THEN read_by ELSE array_append(read_by, $2) END
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, messageID, userID)
	if err != nil {
		return apperr.Storage("mark read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Message not found")
	}
	return nil
}
