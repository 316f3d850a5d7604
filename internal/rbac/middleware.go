package rbac

import (
	"net/http"

	"crm-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireWorkspace enforces the multi-tenant invariant: workspace_id must exist in context.
// Membership is validated when the session is resolved, not here.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		wid, err := auth.WorkspaceID(c.Request.Context())
		if err != nil || wid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("workspace_id required"))
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller holds any of the provided roles.
// super_admin bypasses all checks.
func RequireAnyRole(allowed ...Role) gin.HandlerFunc {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := roleFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("role required"))
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(ErrForbidden.Error()))
			return
		}
		c.Next()
	}
}

// RequirePermission checks name through the policy using the role and grants in request context.
func RequirePermission(p *Policy, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := roleFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("role required"))
			return
		}
		if !p.HasPermission(role, auth.Permissions(c.Request.Context()), name) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(ErrForbidden.Error()))
			return
		}
		c.Next()
	}
}

func roleFrom(c *gin.Context) (Role, bool) {
	raw, err := auth.Role(c.Request.Context())
	if err != nil {
		return "", false
	}
	role, err := ParseRole(raw)
	if err != nil {
		return "", false
	}
	return role, true
}

// errorBody matches the {data, error} envelope used by every API response.
func errorBody(msg string) gin.H {
	return gin.H{"data": nil, "error": gin.H{"message": msg}}
}
