package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS sets cross-origin headers. An empty list or "*" allows any origin.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := OriginSet(allowedOrigins)
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && allowed.Allows(origin) {
			if allowed.Any() {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Origins is a set of allowed origins shared by CORS and the WebSocket upgrader.
type Origins map[string]bool

// OriginSet builds an Origins set from a list.
func OriginSet(list []string) Origins {
	m := make(Origins, len(list))
	for _, o := range list {
		if o != "" {
			m[o] = true
		}
	}
	return m
}

// Any reports whether every origin is allowed.
func (o Origins) Any() bool { return len(o) == 0 || o["*"] }

// Allows reports whether origin is allowed.
func (o Origins) Allows(origin string) bool { return o.Any() || o[origin] }
