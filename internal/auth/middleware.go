package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// AccessCookie carries the access token for page (non-API) requests.
	AccessCookie = "access_token"
)

// TokenFromRequest returns the bearer token, falling back to the access cookie.
func TokenFromRequest(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if strings.HasPrefix(raw, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	}
	if v, err := c.Cookie(AccessCookie); err == nil {
		return v
	}
	return ""
}
