package httpapi

import (
	"net/http"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/identity"
	"crm-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// ClientIP stores the caller address for activity records.
func ClientIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(audit.WithClientIP(c.Request.Context(), c.ClientIP()))
		c.Next()
	}
}

// RequireSession rejects API calls without an authenticated, active and unlocked account.
// It must run after session.Resolver.Middleware.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := session.FromGin(c)
		if ctrl == nil {
			fail(c, identity.ErrNoSession)
			return
		}
		snap := ctrl.Snapshot()
		switch {
		case snap.Status == session.StatusError:
			if err := ctrl.Err(); err != nil {
				fail(c, err)
				return
			}
			fail(c, identity.ErrNoSession)
			return
		case !snap.Authenticated():
			fail(c, identity.ErrNoSession)
			return
		case snap.Locked(time.Now()):
			fail(c, identity.ErrLocked)
			return
		case !snap.User.IsActive:
			c.AbortWithStatusJSON(http.StatusForbidden, envelope{Error: &apiError{Message: "account is inactive"}})
			return
		}
		c.Next()
	}
}
