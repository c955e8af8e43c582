package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cognita/watchparty/internal/auth"
	"github.com/cognita/watchparty/internal/chat"
	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/roomqueue"
	"github.com/cognita/watchparty/internal/store/memory"
	"github.com/cognita/watchparty/internal/video"
	"github.com/cognita/watchparty/pkg/response"
)

type server struct {
	url   string
	jwt   *auth.JWTService
	video *video.Service
	room  *models.Room
	alice models.Identity
	bob   models.Identity
	carol models.Identity
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t)

	mem := memory.New()
	st := mem.Ports()
	s := &server{
		jwt:   auth.NewJWTService("test-secret", 1, ""),
		alice: models.Identity{ID: uuid.New(), Name: "alice", Email: "alice@example.com"},
		bob:   models.Identity{ID: uuid.New(), Name: "bob", Email: "bob@example.com"},
		carol: models.Identity{ID: uuid.New(), Name: "carol", Email: "carol@example.com"},
	}
	s.room = &models.Room{
		Name:                 "movie night",
		Kind:                 models.RoomPrivate,
		Members:              []uuid.UUID{s.alice.ID, s.bob.ID},
		AllowVideoSharing:    true,
		MaxVideoParticipants: models.DefaultMaxVideoParticipants,
	}
	require.NoError(t, mem.CreateRoom(context.Background(), s.room))

	hub := NewHub(logger, nil, nil)
	queue := roomqueue.New(64, logger)
	hist := history.NewService(st, logger)
	chatSvc := chat.NewService(st.Rooms, hist, queue, hub, logger)
	s.video = video.NewService(st, hist, queue, hub, logger)
	d := NewDispatcher(hub, chatSvc, s.video, st.Users, logger)

	r := gin.New()
	r.GET("/ws", ServeWs(hub, s.jwt, d, Options{}, logger))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return s
}

func (s *server) dial(t *testing.T, id models.Identity) *websocket.Conn {
	t.Helper()
	token, err := s.jwt.Generate(id)
	require.NoError(t, err)
	conn, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: event, Data: raw}))
}

// expect reads until event arrives, skipping anything else.
func expect(t *testing.T, conn *websocket.Conn, event string) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %s", event)
		if msg.Event == event {
			return msg
		}
	}
}

// barrier round-trips an unknown event so every earlier command of conn has
// been handled.
func barrier(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, "ping", nil)
	msg := expect(t, conn, models.EventError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	require.Equal(t, "ping", p.Event)
}

func TestHandshakeRequiresToken(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"missing", "", auth.MsgNoToken},
		{"invalid", "?token=not-a-jwt", auth.MsgInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(s.url+tt.query, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body response.Body
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.want, body.Error)
		})
	}
}

func TestVideoSyncOverWebSocket(t *testing.T) {
	s := newServer(t)
	_, err := s.video.Start(context.Background(), models.Caller{Identity: s.alice}, s.room.ID,
		video.StartRequest{VideoURL: "https://example.com/film.mp4", Title: "Film"})
	require.NoError(t, err)

	a, b := s.dial(t, s.alice), s.dial(t, s.bob)
	roomID := s.room.ID.String()

	send(t, a, CmdJoinVideoSession, map[string]string{"roomId": roomID})
	joined := expect(t, a, models.EventVideoSessionJoined)
	var view models.VideoSessionView
	require.NoError(t, json.Unmarshal(joined.Data, &view))
	assert.Equal(t, s.alice.ID, view.Host.ID)

	send(t, b, CmdJoinVideoSession, roomID)
	expect(t, b, models.EventVideoSessionJoined)
	presence := expect(t, a, models.EventUserJoinedVideo)
	var p PresencePayload
	require.NoError(t, json.Unmarshal(presence.Data, &p))
	assert.Equal(t, s.bob.ID, p.UserID)
	assert.Equal(t, "bob", p.UserName)

	send(t, b, CmdVideoSeek, map[string]interface{}{"roomId": roomID, "timestamp": 120})
	seek := expect(t, a, models.EventVideoSeek)
	var pos video.PositionPayload
	require.NoError(t, json.Unmarshal(seek.Data, &pos))
	assert.Equal(t, 120.0, pos.CurrentTime)
	assert.Equal(t, s.bob.ID, pos.UserID)

	send(t, b, CmdRequestVideoSync, map[string]string{"roomId": roomID})
	var next WSMessage
	require.NoError(t, b.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, b.ReadJSON(&next))
	require.Equal(t, models.EventVideoSync, next.Event, "the seek is not echoed to its sender")
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(next.Data, &snap))
	assert.Equal(t, 120.0, snap.CurrentTime)
	assert.NotZero(t, snap.Timestamp)
}

func TestVideoCommandErrorsGoToSenderOnly(t *testing.T) {
	s := newServer(t)
	_, err := s.video.Start(context.Background(), models.Caller{Identity: s.alice}, s.room.ID,
		video.StartRequest{VideoURL: "https://example.com/film.mp4"})
	require.NoError(t, err)

	a, c := s.dial(t, s.alice), s.dial(t, s.carol)
	roomID := s.room.ID.String()
	send(t, a, CmdJoinVideoSession, roomID)
	expect(t, a, models.EventVideoSessionJoined)

	send(t, c, CmdJoinVideoSession, roomID)
	msg := expect(t, c, models.EventVideoError)
	var p VideoErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "You are not a member of this chatroom", p.Message)

	send(t, a, CmdVideoVolume, map[string]interface{}{"roomId": roomID, "volume": 2})
	msg = expect(t, a, models.EventVideoError)
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.NotEmpty(t, p.Message)
}

func TestChatOverWebSocket(t *testing.T) {
	s := newServer(t)
	a, b, c := s.dial(t, s.alice), s.dial(t, s.bob), s.dial(t, s.carol)
	roomID := s.room.ID.String()

	send(t, a, CmdJoinRoom, roomID)
	send(t, b, CmdJoinRoom, map[string]string{"roomId": roomID})
	barrier(t, a)
	barrier(t, b)

	send(t, a, CmdTyping, roomID)
	typing := expect(t, b, models.EventUserTyping)
	assert.JSONEq(t, `{"userId":"`+s.alice.ID.String()+`"}`, string(typing.Data))

	send(t, a, CmdSendMessage, map[string]string{"roomId": roomID, "content": "  hello  "})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := expect(t, conn, models.EventNewMessage)
		var view models.MessageView
		require.NoError(t, json.Unmarshal(msg.Data, &view))
		assert.Equal(t, "hello", view.Content)
		assert.Equal(t, "alice", view.Sender.Name)
	}

	send(t, c, CmdSendMessage, map[string]string{"roomId": roomID, "content": "let me in"})
	msg := expect(t, c, models.EventError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, CmdSendMessage, p.Event)
}

func TestMalformedCommands(t *testing.T) {
	s := newServer(t)
	a := s.dial(t, s.alice)

	send(t, a, CmdJoinRoom, map[string]string{})
	msg := expect(t, a, models.EventError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &p))
	assert.Equal(t, "roomId is required", p.Message)

	send(t, a, CmdVideoSeek, map[string]string{"roomId": s.room.ID.String()})
	msg = expect(t, a, models.EventVideoError)
	var vp VideoErrorPayload
	require.NoError(t, json.Unmarshal(msg.Data, &vp))
	assert.Equal(t, "timestamp is required", vp.Message)
}
