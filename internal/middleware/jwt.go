package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/cognita/watchparty/internal/auth"
	"github.com/cognita/watchparty/internal/models"
	"github.com/cognita/watchparty/pkg/response"
)

const (
	// ContextIdentity is the key for the verified identity in gin context.
	ContextIdentity = "identity"
	// ContextRoom is the key for the room loaded by RoomMember.
	ContextRoom = "room"
)

// JWT returns a middleware that validates the bearer token and sets the
// caller's identity in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := jwtService.Validate(auth.TokenFromRequest(c.Request))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextIdentity, claims.Identity())
		c.Next()
	}
}

// IdentityFrom returns the identity set by JWT.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}
