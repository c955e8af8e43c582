package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/models"
)

// Hub is the process-wide connection registry and channel manager.
// A channel is a room's chat group or its "-video" sync group. Broadcasts are
// delivered to local connections and, when Redis is configured, published so
// other instances deliver them to theirs.
type Hub struct {
	mu       sync.RWMutex
	conns    map[uuid.UUID]*Client
	channels map[string]map[uuid.UUID]*Client
	subs     map[string]func() // cancel Redis subscription per channel
	closed   bool

	instance uuid.UUID
	redis    RedisPublisher
	redisSub RedisSubscriber
	logger   *zap.Logger
	now      func() time.Time
}

// RedisPublisher publishes channel events for other instances.
type RedisPublisher interface {
	PublishChannelEvent(ev ChannelEvent) error
}

// RedisSubscriber subscribes to a channel's events from other instances.
type RedisSubscriber interface {
	SubscribeChannel(channel string, handler func(ev ChannelEvent)) (cancel func(), err error)
}

// ChannelEvent is a broadcast as carried between instances.
type ChannelEvent struct {
	Origin  uuid.UUID       `json:"origin"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	Exclude uuid.UUID       `json:"exclude"`
	At      int64           `json:"at"`
}

// PresencePayload is sent on userJoinedVideo and userLeftVideo.
type PresencePayload struct {
	UserID    uuid.UUID `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp int64     `json:"timestamp"`
}

// NewHub creates a hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		conns:    make(map[uuid.UUID]*Client),
		channels: make(map[string]map[uuid.UUID]*Client),
		subs:     make(map[string]func()),
		instance: uuid.New(),
		redis:    redisPub,
		redisSub: redisSub,
		logger:   logger,
		now:      time.Now,
	}
}

// Register adds an authenticated connection.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("conn_id", c.ID.String()), zap.String("user_id", c.Identity.ID.String()))
}

// Unregister removes a connection and all its channel memberships. Peers on
// its video channels are told it left.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.ID)
	videos := make([]uuid.UUID, 0, len(c.videos))
	for roomID := range c.videos {
		videos = append(videos, roomID)
		h.removeLocked(models.VideoChannel(roomID), c)
	}
	for roomID := range c.rooms {
		h.removeLocked(models.RoomChannel(roomID), c)
	}
	c.rooms, c.videos = map[uuid.UUID]struct{}{}, map[uuid.UUID]struct{}{}
	h.mu.Unlock()

	for _, roomID := range videos {
		h.Broadcast(models.VideoChannel(roomID), models.EventUserLeftVideo, h.presence(c), c.ID)
	}
	h.logger.Info("client disconnected", zap.String("conn_id", c.ID.String()), zap.String("user_id", c.Identity.ID.String()))
}

// addLocked adds c to channel and reports whether it was absent and whether
// the channel was created by this call. h.mu must be held; a created channel
// must be passed to subscribe after h.mu is released.
func (h *Hub) addLocked(channel string, c *Client) (added, created bool) {
	members := h.channels[channel]
	if members == nil {
		members = make(map[uuid.UUID]*Client)
		h.channels[channel] = members
		created = true
	}
	if _, ok := members[c.ID]; ok {
		return false, created
	}
	members[c.ID] = c
	return true, created
}

// removeLocked removes c from channel and reports whether it was present. h.mu must be held.
func (h *Hub) removeLocked(channel string, c *Client) bool {
	members := h.channels[channel]
	if _, ok := members[c.ID]; !ok {
		return false
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.channels, channel)
		if cancel, ok := h.subs[channel]; ok {
			cancel()
			delete(h.subs, channel)
		}
	}
	return true
}

// subscribe opens the Redis subscription for channel without holding h.mu.
// The subscription is kept only if the channel still has members and no other
// subscription was stored meanwhile.
func (h *Hub) subscribe(channel string) {
	if h.redisSub == nil {
		return
	}
	cancel, err := h.redisSub.SubscribeChannel(channel, h.deliverRemote)
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("channel", channel))
		return
	}

	h.mu.Lock()
	_, live := h.channels[channel]
	_, stored := h.subs[channel]
	keep := live && !stored && !h.closed
	if keep {
		h.subs[channel] = cancel
	}
	h.mu.Unlock()
	if !keep {
		cancel()
	}
}

func (h *Hub) deliverRemote(ev ChannelEvent) {
	if ev.Origin == h.instance {
		return
	}
	h.deliver(ev.Channel, WSMessage{Event: ev.Event, Data: ev.Data}, ev.Exclude)
}

// JoinRoom adds c to the room's chat channel. Joining twice is a no-op.
func (h *Hub) JoinRoom(c *Client, roomID uuid.UUID) bool {
	channel := models.RoomChannel(roomID)
	h.mu.Lock()
	if !h.live(c) {
		h.mu.Unlock()
		return false
	}
	c.rooms[roomID] = struct{}{}
	added, created := h.addLocked(channel, c)
	h.mu.Unlock()
	if created {
		h.subscribe(channel)
	}
	return added
}

// LeaveRoom removes c from the room's chat channel.
func (h *Hub) LeaveRoom(c *Client, roomID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.rooms, roomID)
	return h.removeLocked(models.RoomChannel(roomID), c)
}

// JoinVideo adds c to the room's video channel and, if it was not already
// there, tells the other members.
func (h *Hub) JoinVideo(c *Client, roomID uuid.UUID) bool {
	channel := models.VideoChannel(roomID)
	var added, created bool
	h.mu.Lock()
	if h.live(c) {
		added, created = h.addLocked(channel, c)
	}
	if added {
		c.videos[roomID] = struct{}{}
	}
	h.mu.Unlock()
	if created {
		h.subscribe(channel)
	}
	if added {
		h.Broadcast(models.VideoChannel(roomID), models.EventUserJoinedVideo, h.presence(c), c.ID)
	}
	return added
}

// LeaveVideo removes c from the room's video channel and, if it was there,
// tells the remaining members.
func (h *Hub) LeaveVideo(c *Client, roomID uuid.UUID) bool {
	h.mu.Lock()
	delete(c.videos, roomID)
	removed := h.removeLocked(models.VideoChannel(roomID), c)
	h.mu.Unlock()
	if removed {
		h.Broadcast(models.VideoChannel(roomID), models.EventUserLeftVideo, h.presence(c), c.ID)
	}
	return removed
}

func (h *Hub) live(c *Client) bool {
	_, ok := h.conns[c.ID]
	return ok
}

func (h *Hub) presence(c *Client) PresencePayload {
	return PresencePayload{UserID: c.Identity.ID, UserName: c.Identity.Name, Timestamp: h.now().UnixMilli()}
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}

// Broadcast sends event to every connection on channel except exclude.
func (h *Hub) Broadcast(channel, event string, payload interface{}, exclude uuid.UUID) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("encode broadcast failed", zap.Error(err), zap.String("event", event))
		return
	}
	h.deliver(channel, WSMessage{Event: event, Data: data}, exclude)
	if h.redis != nil {
		ev := ChannelEvent{Origin: h.instance, Channel: channel, Event: event, Data: data, Exclude: exclude, At: h.now().UnixMilli()}
		if err := h.redis.PublishChannelEvent(ev); err != nil {
			h.logger.Warn("redis publish failed", zap.Error(err), zap.String("channel", channel))
		}
	}
}

func (h *Hub) deliver(channel string, msg WSMessage, exclude uuid.UUID) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.channels[channel]))
	for id, c := range h.channels[channel] {
		if id != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(msg)
	}
}

// SendTo sends event to a single local connection.
func (h *Hub) SendTo(connID uuid.UUID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Error("encode message failed", zap.Error(err), zap.String("event", event))
		return
	}
	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(WSMessage{Event: event, Data: data})
	}
}

// ChannelCount returns the number of local connections on channel.
func (h *Hub) ChannelCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close cancels every Redis subscription, including ones still being opened.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for channel, cancel := range h.subs {
		cancel()
		delete(h.subs, channel)
	}
}
