package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/session"

	"github.com/gin-gonic/gin"
)

func servePage(t *testing.T, g *Guard, r Route) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET(r.Path, g.Page(r), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, r.Path, nil))
	return w
}

func TestPage_WithoutSessionRedirectsToLogin(t *testing.T) {
	w := servePage(t, New(mustPolicy(t)), Route{Path: "/users", RequireAdmin: true})
	if w.Code != http.StatusFound || w.Header().Get("Location") != LoginPath {
		t.Fatalf("expected 302 to /login, got %d %q", w.Code, w.Header().Get("Location"))
	}
}

func TestPage_DiagnosticWhenNotConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(session.NewResolver(session.Options{Timeout: time.Second}).Middleware())
	r := Route{Path: "/clients", RequiredPermission: rbac.PermClientsView}
	router.GET(r.Path, New(mustPolicy(t)).Page(r), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, r.Path, nil)
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
