package guard

import (
	"net/http"
	"time"

	"crm-platform/internal/metrics"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const decisionKey = "guard_decision"

type Guard struct {
	policy *rbac.Policy
	clock  func() time.Time
}

func New(policy *rbac.Policy) *Guard {
	return &Guard{policy: policy, clock: time.Now}
}

// Page returns middleware that evaluates route against the request's session
// (see session.Resolver) and only calls the next handler on a render decision.
func (g *Guard) Page(route Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := session.Snapshot{Status: session.StatusUnauthenticated}
		if ctrl := session.FromGin(c); ctrl != nil {
			snap = ctrl.Snapshot()
		}
		d := Evaluate(snap, route, g.policy, g.clock())
		metrics.GuardDecisions.WithLabelValues(route.Path, string(d.Kind)).Inc()
		c.Set(decisionKey, d)

		switch d.Kind {
		case KindRender:
			c.Next()
		case KindRedirect:
			c.Redirect(http.StatusFound, d.Location)
			c.Abort()
		case KindLocked:
			c.AbortWithStatusJSON(http.StatusLocked, interstitial(d))
		case KindInactive:
			c.AbortWithStatusJSON(http.StatusForbidden, interstitial(d))
		case KindLoading:
			c.AbortWithStatusJSON(http.StatusAccepted, gin.H{"data": gin.H{"page": "loading"}, "error": nil})
		default:
			logger.FromGin(c).Warn("diagnostic page", "route", route.Path, "err", d.Message)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"data":  gin.H{"page": string(KindDiagnostic)},
				"error": gin.H{"message": d.Message},
			})
		}
	}
}

// DecisionFromGin returns the decision made for the current request.
func DecisionFromGin(c *gin.Context) (Decision, bool) {
	v, ok := c.Get(decisionKey)
	if !ok {
		return Decision{}, false
	}
	d, ok := v.(Decision)
	return d, ok
}

func interstitial(d Decision) gin.H {
	return gin.H{"data": gin.H{"page": string(d.Kind), "lockedUntil": d.LockedUntil}, "error": gin.H{"message": d.Message}}
}
