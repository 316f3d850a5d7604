package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-platform/internal/auth"
	"crm-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

func serveResolved(t *testing.T, r *Resolver, token string) (int, string, Status) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(r.Middleware())

	var userID string
	var status Status
	router.GET("/x", func(c *gin.Context) {
		userID, _ = auth.UserID(c.Request.Context())
		if ctrl := FromGin(c); ctrl != nil {
			status = ctrl.Snapshot().Status
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code, userID, status
}

func TestResolver_BearerTokenResolvesIdentity(t *testing.T) {
	e := newEnv(t)
	u := e.addUser(t, "m@example.com", rbac.RoleMember)

	c := NewController(e.opts)
	defer c.Close()
	if err := c.SignIn(context.Background(), "m@example.com", "password1"); err != nil {
		t.Fatalf("signin: %v", err)
	}

	code, userID, status := serveResolved(t, NewResolver(e.opts), c.Snapshot().Session.AccessToken)
	if code != http.StatusOK || userID != u.ID || status != StatusAuthenticated {
		t.Fatalf("unexpected result code=%d user=%q status=%s", code, userID, status)
	}
}

func TestResolver_MissingTokenIsUnauthenticated(t *testing.T) {
	e := newEnv(t)
	code, userID, status := serveResolved(t, NewResolver(e.opts), "")
	if code != http.StatusOK || userID != "" || status != StatusUnauthenticated {
		t.Fatalf("unexpected result code=%d user=%q status=%s", code, userID, status)
	}
}

func TestResolver_GarbageTokenIsUnauthenticated(t *testing.T) {
	e := newEnv(t)
	_, userID, status := serveResolved(t, NewResolver(e.opts), "not-a-jwt")
	if userID != "" || status != StatusUnauthenticated {
		t.Fatalf("unexpected result user=%q status=%s", userID, status)
	}
}
