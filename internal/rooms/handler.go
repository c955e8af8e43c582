package rooms

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cognita/watchparty/internal/middleware"
	"github.com/cognita/watchparty/pkg/response"
)

// AddMemberRequest is the body for POST /chatrooms/:id/members.
type AddMemberRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
}

// Handler handles chatroom HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a room handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Create handles POST /chatrooms.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	who, _ := middleware.IdentityFrom(c)
	room, err := h.svc.Create(c.Request.Context(), who, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, room)
}

// List handles GET /chatrooms.
func (h *Handler) List(c *gin.Context) {
	who, _ := middleware.IdentityFrom(c)
	list, err := h.svc.ListForMember(c.Request.Context(), who.ID)
	if err != nil {
		h.logger.Error("list chatrooms failed", zap.Error(err), zap.String("user_id", who.ID.String()))
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /chatrooms/:id. Requires RoomMember.
func (h *Handler) Get(c *gin.Context) {
	room := middleware.RoomFrom(c)
	v, err := h.svc.Get(c.Request.Context(), room.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}

// AddMember handles POST /chatrooms/:id/members. Requires RoomMember.
func (h *Handler) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	who, _ := middleware.IdentityFrom(c)
	room := middleware.RoomFrom(c)
	v, err := h.svc.AddMember(c.Request.Context(), who, room.ID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, v)
}
