package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/internal/store"
	"github.com/cognita/watchparty/pkg/apperr"
	"github.com/cognita/watchparty/pkg/response"
)

// RoomMember loads the room named by the :id path parameter and allows only
// its members through. The room is stored under ContextRoom.
func RoomMember(rooms store.Rooms) gin.HandlerFunc {
	return func(c *gin.Context) {
		who, ok := IdentityFrom(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		roomID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid chatroom id")
			c.Abort()
			return
		}
		room, err := rooms.GetRoom(c.Request.Context(), roomID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !room.IsMember(who.ID) {
			response.Error(c, apperr.Permission("You are not a member of this chatroom"))
			c.Abort()
			return
		}
		c.Set(ContextRoom, room)
		c.Next()
	}
}

// RoomFrom returns the room set by RoomMember.
func RoomFrom(c *gin.Context) *models.Room {
	v, ok := c.Get(ContextRoom)
	if !ok {
		return nil
	}
	room, _ := v.(*models.Room)
	return room
}
