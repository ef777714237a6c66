package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionCookie = "cart_session"
	// One year; the cart inside expires on its own schedule, the cookie just
	// keeps the session identity stable.
	sessionCookieMaxAge = 365 * 24 * 60 * 60

	ctxSessionID = "session_id"
	ctxUserID    = "user_id"
)

// sessionMiddleware assigns every caller a stable cart session id, carried in
// a cookie. The id is opaque; the cart content lives server-side in Redis.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(sessionCookie)
		if err != nil || id == "" {
			id = uuid.New().String()
			c.SetCookie(sessionCookie, id, sessionCookieMaxAge, "/", "", false, true)
		}
		c.Set(ctxSessionID, id)
		c.Next()
	}
}

// authRequired trusts the X-User-ID header set by the upstream auth proxy.
// Authentication itself happens there; this service only needs the identity.
func authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-User-ID")
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"detail": "Authentication required.",
			})
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

func sessionID(c *gin.Context) string {
	return c.GetString(ctxSessionID)
}

func userID(c *gin.Context) int64 {
	return c.GetInt64(ctxUserID)
}
