package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/clients"
	"crm-platform/internal/config"
	"crm-platform/internal/dashboard"
	"crm-platform/internal/email"
	"crm-platform/internal/extraction"
	"crm-platform/internal/guard"
	"crm-platform/internal/identity"
	"crm-platform/internal/invoices"
	"crm-platform/internal/projects"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/store"
	"crm-platform/internal/users"
	"crm-platform/internal/workspace"
	"crm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router *gin.Engine
	local  *identity.Local
	repo   *users.MemoryRepo
	users  *users.Service
	ws     *workspace.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	local := identity.NewLocal(identity.LocalOptions{Credentials: identity.NewMemoryCredentials(), Tokens: m, BcryptCost: bcrypt.MinCost})
	policy, _ := rbac.NewPolicy(rbac.ModeGranted, nil, nil)
	activity := audit.NewService(audit.NewMemoryRepo())
	ws := workspace.NewService(workspace.NewMemoryRepo(), activity)
	repo := users.NewMemoryRepo()
	us := users.NewService(repo, users.Deps{Policy: policy, Memberships: ws, Registrar: local, Accounts: local, Activity: activity})
	cl := clients.NewService(clients.NewMemoryRepo(), activity)
	pr := projects.NewService(projects.NewMemoryRepo(), cl, ws, activity)
	inv := invoices.NewService(invoices.NewMemoryRepo(), cl, activity)
	ex := extraction.NewService(extraction.NewMemoryRepo(), nil, cl, activity)
	dispatcher := email.NewDispatcher(email.NewLogSender(logger.Discard()), email.DispatcherOptions{
		Config:   config.EmailConfig{RatePerSec: 1000},
		AppName:  "CRM",
		BaseURL:  "http://localhost:8080",
		Activity: activity,
	})

	h := &Handlers{
		Sessions:   session.NewResolver(session.Options{Provider: local, Profiles: us, Policy: policy, Activity: activity, Timeout: time.Second}),
		Provider:   local,
		Policy:     policy,
		Guard:      guard.New(policy),
		Users:      us,
		Workspaces: ws,
		Clients:    cl,
		Projects:   pr,
		Invoices:   inv,
		Extraction: ex,
		Activity:   activity,
		Dashboard: dashboard.NewService(dashboard.Sources{
			Users: us, Clients: cl, Projects: pr, Invoices: inv, Activity: activity,
		}),
		Email:     dispatcher,
		AccessTTL: time.Minute,
	}
	r := gin.New()
	h.Register(r)
	return &testServer{router: r, local: local, repo: repo, users: us, ws: ws}
}

func (s *testServer) addUser(t *testing.T, email string, role rbac.Role) users.UserProfile {
	t.Helper()
	ctx := context.Background()
	id, err := s.local.Register(ctx, email, "password1", "Test User", role)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	now := time.Now().UTC()
	if err := s.repo.InsertProfile(ctx, users.UserProfile{ID: id, Email: email, Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("profile: %v", err)
	}
	p, _ := s.users.Get(ctx, id)
	return p
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out apiResponse
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	code, res := s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": email, "password": "password1"})
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%+v)", code, res.Error)
	}
	var body struct {
		Session struct {
			AccessToken string `json:"accessToken"`
		} `json:"session"`
	}
	if err := json.Unmarshal(res.Data, &body); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if body.Session.AccessToken == "" {
		t.Fatalf("expected access token in %s", res.Data)
	}
	return body.Session.AccessToken
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, res := s.do(t, http.MethodGet, "/healthz", "", nil)
	if code != http.StatusOK || res.Error != nil {
		t.Fatalf("expected 200 with no error, got %d %+v", code, res.Error)
	}
}

func TestLogin_WrongPasswordIs401(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "a@example.com", rbac.RoleAdmin)
	code, res := s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": "a@example.com", "password": "nope-nope"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if res.Error == nil || res.Error.Message == "" {
		t.Fatalf("expected error message in envelope")
	}
}

func TestLogin_InvalidBodyIs400(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": "not-an-email"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestSession_AnonymousIsUnauthenticatedSnapshot(t *testing.T) {
	s := newTestServer(t)
	code, res := s.do(t, http.MethodGet, "/v1/auth/session", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var snap struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(res.Data, &snap)
	if snap.Status != string(session.StatusUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %q", snap.Status)
	}
}

func TestAPI_RequiresSession(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/v1/clients", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestClientsCRUD(t *testing.T) {
	s := newTestServer(t)
	u := s.addUser(t, "a@example.com", rbac.RoleAdmin)
	if _, err := s.ws.Create(context.Background(), u.ID, workspace.CreateRequest{Name: "Acme"}); err != nil {
		t.Fatalf("workspace: %v", err)
	}
	tok := s.login(t, "a@example.com")

	code, res := s.do(t, http.MethodPost, "/v1/clients", tok, gin.H{"companyName": "Globex", "email": "ops@globex.test"})
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (%+v)", code, res.Error)
	}
	var created clients.Client
	_ = json.Unmarshal(res.Data, &created)
	if created.ID == "" || created.CompanyName != "Globex" {
		t.Fatalf("unexpected client %+v", created)
	}

	code, res = s.do(t, http.MethodGet, "/v1/clients", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", code)
	}
	var list []clients.Client
	_ = json.Unmarshal(res.Data, &list)
	if len(list) != 1 {
		t.Fatalf("expected one client, got %d", len(list))
	}

	code, _ = s.do(t, http.MethodPost, "/v1/clients", tok, gin.H{"email": "missing-company@globex.test"})
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing company, got %d", code)
	}

	code, _ = s.do(t, http.MethodDelete, "/v1/clients/"+created.ID, tok, nil)
	if code != http.StatusOK && code != http.StatusNoContent {
		t.Fatalf("delete: unexpected %d", code)
	}
	code, _ = s.do(t, http.MethodGet, "/v1/clients/"+created.ID, tok, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestMemberWithoutGrantIsForbidden(t *testing.T) {
	s := newTestServer(t)
	admin := s.addUser(t, "a@example.com", rbac.RoleAdmin)
	w, _ := s.ws.Create(context.Background(), admin.ID, workspace.CreateRequest{Name: "Acme"})
	m := s.addUser(t, "m@example.com", rbac.RoleMember)
	_ = s.ws.AddMember(context.Background(), w.ID, m.ID, rbac.RoleMember)
	tok := s.login(t, "m@example.com")

	if code, _ := s.do(t, http.MethodGet, "/v1/clients", tok, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for clients, got %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/v1/users", tok, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for users, got %d", code)
	}
}

func TestGuardedPage_AnonymousRedirectsToLogin(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/clients", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != guard.LoginPath {
		t.Fatalf("expected redirect to %s, got %q", guard.LoginPath, loc)
	}
}

func TestLoginPage_BootstrapUntilFirstUser(t *testing.T) {
	s := newTestServer(t)
	read := func() bool {
		_, res := s.do(t, http.MethodGet, "/login", "", nil)
		var body struct {
			Bootstrap bool `json:"bootstrap"`
		}
		_ = json.Unmarshal(res.Data, &body)
		return body.Bootstrap
	}
	if !read() {
		t.Fatalf("expected bootstrap with no users")
	}
	s.addUser(t, "a@example.com", rbac.RoleAdmin)
	if read() {
		t.Fatalf("expected no bootstrap once a user exists")
	}
}

func TestLogout_AlwaysOK(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/v1/auth/logout", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{store.ErrNotConfigured, http.StatusServiceUnavailable},
		{session.ErrTimeout, http.StatusGatewayTimeout},
		{identity.ErrLocked, http.StatusLocked},
		{identity.ErrInvalidCredentials, http.StatusUnauthorized},
		{rbac.ErrForbidden, http.StatusForbidden},
		{store.ErrNotFound, http.StatusNotFound},
		{store.ErrConflict, http.StatusConflict},
		{extraction.ErrBusy, http.StatusTooManyRequests},
		{email.ErrDelivery, http.StatusBadGateway},
		{store.ErrInvalidArgument, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestChangePassword_Flow(t *testing.T) {
	s := newTestServer(t)
	u := s.addUser(t, "a@example.com", rbac.RoleAdmin)
	if _, err := s.ws.Create(context.Background(), u.ID, workspace.CreateRequest{Name: "Acme"}); err != nil {
		t.Fatalf("workspace: %v", err)
	}
	tok := s.login(t, "a@example.com")

	code, _ := s.do(t, http.MethodPost, "/v1/auth/password", tok, gin.H{"currentPassword": "wrong-one", "newPassword": "password2"})
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong current password, got %d", code)
	}
	code, _ = s.do(t, http.MethodPost, "/v1/auth/password", tok, gin.H{"currentPassword": "password1", "newPassword": "password2"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	code, _ = s.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{"email": "a@example.com", "password": "password2"})
	if code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", code)
	}
}

func TestActivity_AdminCanList(t *testing.T) {
	s := newTestServer(t)
	u := s.addUser(t, "a@example.com", rbac.RoleAdmin)
	if _, err := s.ws.Create(context.Background(), u.ID, workspace.CreateRequest{Name: "Acme"}); err != nil {
		t.Fatalf("workspace: %v", err)
	}
	tok := s.login(t, "a@example.com")

	code, res := s.do(t, http.MethodGet, "/v1/activity", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, res.Error)
	}
	if res.Error != nil {
		t.Fatalf("unexpected error %+v", res.Error)
	}
}

func TestUnlockUser_ClearsSignInLock(t *testing.T) {
	s := newTestServer(t)
	admin := s.addUser(t, "a@example.com", rbac.RoleAdmin)
	w, err := s.ws.Create(context.Background(), admin.ID, workspace.CreateRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	m := s.addUser(t, "m@example.com", rbac.RoleMember)
	if err := s.ws.AddMember(context.Background(), w.ID, m.ID, rbac.RoleMember); err != nil {
		t.Fatalf("member: %v", err)
	}
	tok := s.login(t, "a@example.com")

	wrong := gin.H{"email": "m@example.com", "password": "wrong-pass"}
	code := 0
	for i := 0; i < 5; i++ {
		code, _ = s.do(t, http.MethodPost, "/v1/auth/login", "", wrong)
	}
	if code != http.StatusLocked {
		t.Fatalf("expected 423 after repeated failures, got %d", code)
	}
	right := gin.H{"email": "m@example.com", "password": "password1"}
	if code, _ := s.do(t, http.MethodPost, "/v1/auth/login", "", right); code != http.StatusLocked {
		t.Fatalf("expected 423 with the right password while locked, got %d", code)
	}

	if code, res := s.do(t, http.MethodPost, "/v1/users/"+m.ID+"/unlock", tok, nil); code != http.StatusOK {
		t.Fatalf("unlock: expected 200, got %d (%+v)", code, res.Error)
	}
	if code, res := s.do(t, http.MethodPost, "/v1/auth/login", "", right); code != http.StatusOK {
		t.Fatalf("expected sign-in after unlock, got %d (%+v)", code, res.Error)
	}
}

func newUnconfiguredServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	policy, _ := rbac.NewPolicy(rbac.ModeGranted, nil, nil)
	activity := audit.NewService(nil)
	ws := workspace.NewService(nil, activity)
	us := users.NewService(nil, users.Deps{Policy: policy, Memberships: ws, Activity: activity})
	cl := clients.NewService(nil, activity)
	pr := projects.NewService(nil, cl, ws, activity)
	inv := invoices.NewService(nil, cl, activity)
	ex := extraction.NewService(nil, extraction.NewHeuristicExtractor(nil), cl, activity)

	h := &Handlers{
		Sessions:   session.NewResolver(session.Options{Profiles: us, Policy: policy, Activity: activity, Timeout: time.Second}),
		Policy:     policy,
		Guard:      guard.New(policy),
		Users:      us,
		Workspaces: ws,
		Clients:    cl,
		Projects:   pr,
		Invoices:   inv,
		Extraction: ex,
		Activity:   activity,
		Dashboard: dashboard.NewService(dashboard.Sources{
			Users: us, Clients: cl, Projects: pr, Invoices: inv, Activity: activity,
		}),
		Email: email.NewDispatcher(email.NewLogSender(logger.Discard()), email.DispatcherOptions{
			Config:   config.EmailConfig{RatePerSec: 1000},
			AppName:  "CRM",
			Activity: activity,
		}),
		AccessTTL: time.Minute,
	}
	r := gin.New()
	h.Register(r)
	return &testServer{router: r, users: us, ws: ws}
}

func TestUnconfiguredBackend_Answers503Envelope(t *testing.T) {
	s := newUnconfiguredServer(t)
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/v1/clients", nil},
		{http.MethodGet, "/v1/users", nil},
		{http.MethodGet, "/login", nil},
		{http.MethodPost, "/v1/auth/login", gin.H{"email": "a@example.com", "password": "password1"}},
	}
	for _, tc := range cases {
		code, res := s.do(t, tc.method, tc.path, "", tc.body)
		if code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected 503, got %d", tc.method, tc.path, code)
		}
		if len(res.Data) != 0 && string(res.Data) != "null" {
			t.Fatalf("%s %s: expected null data, got %s", tc.method, tc.path, res.Data)
		}
		if res.Error == nil || res.Error.Message != store.ErrNotConfigured.Error() {
			t.Fatalf("%s %s: expected %q, got %+v", tc.method, tc.path, store.ErrNotConfigured, res.Error)
		}
	}
}
