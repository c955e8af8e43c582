package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/auth"
	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/response"
)

const writeWait = 10 * time.Second

// Options tunes connection handling.
type Options struct {
	SendBuffer     int
	ReadLimit      int64
	PingInterval   time.Duration
	PongWait       time.Duration
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 65536
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	return o
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one authenticated WebSocket connection.
type Client struct {
	ID       uuid.UUID
	Identity models.Identity

	// rooms and videos are the joined channels, guarded by hub.mu.
	rooms  map[uuid.UUID]struct{}
	videos map[uuid.UUID]struct{}

	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	opts      Options
	logger    *zap.Logger
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, id models.Identity, opts Options, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: id,
		rooms:    make(map[uuid.UUID]struct{}),
		videos:   make(map[uuid.UUID]struct{}),
		hub:      hub,
		conn:     conn,
		send:     make(chan WSMessage, opts.SendBuffer),
		opts:     opts,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Caller returns the identity and connection behind this client's commands.
func (c *Client) Caller() models.Caller {
	return models.Caller{Identity: c.Identity, ConnID: c.ID}
}

// enqueue queues msg for the write pump. A client whose buffer is full is
// disconnected rather than silently missing ordered events.
func (c *Client) enqueue(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("slow consumer disconnected", zap.String("conn_id", c.ID.String()),
			zap.String("user_id", c.Identity.ID.String()), zap.String("event", msg.Event))
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// ServeWs authenticates the request, upgrades it and runs the client loop.
// A missing or invalid credential is refused before the upgrade.
func ServeWs(hub *Hub, jwt *auth.JWTService, d *Dispatcher, opts Options, logger *zap.Logger) gin.HandlerFunc {
	opts = opts.withDefaults()
	origins := middleware.OriginSet(opts.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origins.Allows(origin)
		},
	}

	return func(c *gin.Context) {
		claims, err := jwt.Validate(auth.TokenFromRequest(c.Request))
		if err != nil {
			logger.Info("websocket rejected", zap.Error(err), zap.String("client_ip", c.ClientIP()))
			response.Error(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		id := claims.Identity()
		d.Connected(c.Request.Context(), id)
		client := newClient(hub, conn, id, opts, logger)
		hub.Register(client)
		go client.writePump()
		client.readPump(d)
	}
}

func (c *Client) readPump(d *Dispatcher) {
	defer func() {
		c.hub.Unregister(c)
		c.close()
	}()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	ctx := context.Background()
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err), zap.String("conn_id", c.ID.String()))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		d.Dispatch(ctx, c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
