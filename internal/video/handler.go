package video

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/history"
	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
	"github.com/cognita/watchparty/pkg/response"
)

// Handler exposes the video session lifecycle over HTTP. Changes made here
// fan out to connected clients like their real-time counterparts.
type Handler struct {
	svc             *Service
	history         *history.Service
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// NewHandler creates a video handler.
func NewHandler(svc *Service, hist *history.Service, defaultPageSize, maxPageSize int, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, history: hist, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize, logger: logger}
}

func (h *Handler) target(c *gin.Context) (models.Caller, uuid.UUID, bool) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return models.Caller{}, uuid.Nil, false
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid chatroom id")
		return models.Caller{}, uuid.Nil, false
	}
	return models.Caller{Identity: who}, roomID, true
}

func (h *Handler) fail(c *gin.Context, op string, roomID uuid.UUID, err error) {
	if apperr.KindOf(err) == apperr.KindStorage || apperr.KindOf(err) == apperr.KindUnknown {
		h.logger.Error(op+" failed", zap.Error(err), zap.String("room_id", roomID.String()))
	}
	response.Error(c, err)
}

// Start handles POST /api/chatroom/:id/video/start.
func (h *Handler) Start(c *gin.Context) {
	caller, roomID, ok := h.target(c)
	if !ok {
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	vs, err := h.svc.Start(c.Request.Context(), caller, roomID, req)
	if err != nil {
		h.fail(c, "start video session", roomID, err)
		return
	}
	response.Created(c, gin.H{"message": "Video session started successfully", "videoSession": vs})
}

// Join handles POST /api/chatroom/:id/video/join.
func (h *Handler) Join(c *gin.Context) {
	caller, roomID, ok := h.target(c)
	if !ok {
		return
	}
	vs, err := h.svc.Join(c.Request.Context(), caller, roomID)
	if err != nil {
		h.fail(c, "join video session", roomID, err)
		return
	}
	response.OK(c, gin.H{"message": "Joined video session successfully", "videoSession": vs})
}

// Leave handles POST /api/chatroom/:id/video/leave.
func (h *Handler) Leave(c *gin.Context) {
	caller, roomID, ok := h.target(c)
	if !ok {
		return
	}
	res, err := h.svc.Leave(c.Request.Context(), caller, roomID)
	if err != nil {
		h.fail(c, "leave video session", roomID, err)
		return
	}
	response.OK(c, gin.H{"message": "Left video session successfully", "left": res.Left, "ended": res.Ended})
}

// End handles POST /api/chatroom/:id/video/end.
func (h *Handler) End(c *gin.Context) {
	caller, roomID, ok := h.target(c)
	if !ok {
		return
	}
	if err := h.svc.End(c.Request.Context(), caller, roomID); err != nil {
		h.fail(c, "end video session", roomID, err)
		return
	}
	response.OK(c, gin.H{"message": "Video session ended successfully"})
}

// Get handles GET /api/chatroom/:id/video. Requires RoomMember.
func (h *Handler) Get(c *gin.Context) {
	room := middleware.RoomFrom(c)
	cur, err := h.svc.Current(c.Request.Context(), room.ID)
	if err != nil {
		h.fail(c, "get video session", room.ID, err)
		return
	}
	response.OK(c, cur)
}

// History handles GET /api/chatroom/:id/video/history. Requires RoomMember.
func (h *Handler) History(c *gin.Context) {
	room := middleware.RoomFrom(c)
	out, err := h.history.ListSessionHistory(c.Request.Context(), room.ID, history.ParsePage(c, h.defaultPageSize, h.maxPageSize))
	if err != nil {
		h.fail(c, "list video session history", room.ID, err)
		return
	}
	response.OK(c, out)
}

// UpdateSettings handles PATCH /api/chatroom/:id/video/settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	caller, roomID, ok := h.target(c)
	if !ok {
		return
	}
	var upd SettingsUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	vs, err := h.svc.UpdateSettings(c.Request.Context(), caller, roomID, upd)
	if err != nil {
		h.fail(c, "update video settings", roomID, err)
		return
	}
	response.OK(c, gin.H{"message": "Video session settings updated successfully", "videoSession": vs})
}
