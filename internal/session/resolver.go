package session

import (
	"crm-platform/internal/auth"
	"crm-platform/internal/identity"

	"github.com/gin-gonic/gin"
)

const ginKey = "session"

// Resolver builds one Controller per request from the presented token.
type Resolver struct {
	opts Options
}

func NewResolver(opts Options) *Resolver { return &Resolver{opts: opts} }

func (r *Resolver) New() *Controller { return NewController(r.opts) }

// Middleware resolves the caller's session and, when authenticated, stores the identity in
// the request context for rbac and the services. It never rejects a request.
func (r *Resolver) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := r.New()
		defer ctrl.Close()

		tok := auth.TokenFromRequest(c)
		ctrl.Restore(identity.Session{AccessToken: tok})
		_ = ctrl.RefreshUser(c.Request.Context())

		if snap := ctrl.Snapshot(); snap.Authenticated() {
			ctx := auth.WithIdentity(c.Request.Context(), snap.User.ID, snap.WorkspaceID, string(snap.Role))
			ctx = auth.WithPermissions(ctx, snap.User.Permissions)
			ctx = auth.WithAccessToken(ctx, tok)
			c.Request = c.Request.WithContext(ctx)
			c.Set("user_id", snap.User.ID)
			c.Set("workspace_id", snap.WorkspaceID)
			c.Set("role", string(snap.Role))
		}
		c.Set(ginKey, ctrl)
		c.Next()
	}
}

// FromGin returns the request's controller, or nil when Middleware did not run.
func FromGin(c *gin.Context) *Controller {
	if v, ok := c.Get(ginKey); ok {
		if ctrl, ok := v.(*Controller); ok {
			return ctrl
		}
	}
	return nil
}
