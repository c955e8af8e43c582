package history

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/pkg/response"
)

// Handler serves the message log over HTTP.
type Handler struct {
	svc             *Service
	defaultPageSize int
	maxPageSize     int
	logger          *zap.Logger
}

// NewHandler creates a history handler.
func NewHandler(svc *Service, defaultPageSize, maxPageSize int, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, defaultPageSize: defaultPageSize, maxPageSize: maxPageSize, logger: logger}
}

// ParsePage reads page and limit query parameters.
func ParsePage(c *gin.Context, def, max int) Page {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return NewPage(page, limit, def, max)
}

// ListMessages handles GET /chatrooms/:id/messages. Requires RoomMember.
func (h *Handler) ListMessages(c *gin.Context) {
	room := middleware.RoomFrom(c)
	list, err := h.svc.List(c.Request.Context(), room.ID, ParsePage(c, h.defaultPageSize, h.maxPageSize))
	if err != nil {
		h.logger.Error("list messages failed", zap.Error(err), zap.String("room_id", room.ID.String()))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// MarkRead handles POST /chatrooms/:id/messages/:messageId/read. Requires RoomMember.
func (h *Handler) MarkRead(c *gin.Context) {
	room := middleware.RoomFrom(c)
	who, _ := middleware.IdentityFrom(c)
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		response.BadRequest(c, "invalid message id")
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), room.ID, messageID, who.ID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"messageId": messageID, "userId": who.ID})
}
