package chat

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/apperr"
	"github.com/cognita/watchparty/pkg/response"
)

// SendMessageRequest is the body for POST /chatrooms/:id/messages.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Handler exposes sendMessage over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SendMessage handles POST /chatrooms/:id/messages. Requires RoomMember.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	who, _ := middleware.IdentityFrom(c)
	room := middleware.RoomFrom(c)

	msg, err := h.svc.SendMessage(c.Request.Context(), models.Caller{Identity: who}, room.ID, req.Content)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStorage {
			h.logger.Error("send message failed", zap.Error(err), zap.String("room_id", room.ID.String()))
		}
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}
