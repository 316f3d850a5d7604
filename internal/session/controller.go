package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/identity"
	"crm-platform/internal/metrics"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/internal/users"
	"crm-platform/pkg/logger"
)

// ProfileSource is the slice of the users service the controller needs.
type ProfileSource interface {
	Get(ctx context.Context, id string) (users.UserProfile, error)
	TouchLogin(ctx context.Context, id string) error
}

type Options struct {
	Provider identity.Provider
	Profiles ProfileSource
	Policy   *rbac.Policy
	Activity *audit.Service
	// Timeout bounds each remote step; zero means 10s.
	Timeout time.Duration
}

// Controller is the single source of truth for one client's session.
//
// Invariants:
// - state is only written under mu, and only through allowed transitions
// - every operation takes a generation number; results of superseded operations are dropped
// - remote calls never run while mu is held
// - sign-out always ends in {user: nil, error: ""}
type Controller struct {
	provider identity.Provider
	profiles ProfileSource
	policy   *rbac.Policy
	activity *audit.Service
	timeout  time.Duration

	mu      sync.Mutex
	snap    Snapshot
	err     error
	gen     uint64
	pending *pendingSignIn

	unsubscribe func()
}

type pendingSignIn struct {
	email string
	gen   uint64
}

func NewController(opts Options) *Controller {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy, _ = rbac.NewPolicy(rbac.ModeGranted, nil, nil)
	}
	c := &Controller{
		provider: opts.Provider,
		profiles: opts.Profiles,
		policy:   opts.Policy,
		activity: opts.Activity,
		timeout:  opts.Timeout,
		snap:     Snapshot{Status: StatusLoading},
	}
	if c.provider != nil {
		c.unsubscribe = c.provider.OnAuthStateChange(c.handleEvent)
	}
	return c
}

// Close detaches the controller from provider events.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// Err returns the error behind the current snapshot's message, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Restore attaches an existing session (for example a bearer token) without loading it.
func (c *Controller) Restore(sess identity.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Session = &sess
}

// SignIn authenticates with the provider. The profile is loaded by the signed_in event handler,
// the same path used for provider-initiated events.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.snap = Snapshot{Status: StatusLoading}
	c.err = nil
	c.pending = &pendingSignIn{email: email, gen: gen}
	c.mu.Unlock()

	if c.provider == nil {
		c.commit(gen, Snapshot{Status: StatusUnauthenticated, Error: store.ErrNotConfigured.Error()}, store.ErrNotConfigured)
		return store.ErrNotConfigured
	}

	type signInResult struct {
		sess identity.Session
		user identity.User
	}
	res, err := watch(ctx, c.timeout, func(ctx context.Context) (signInResult, error) {
		s, u, err := c.provider.SignInWithPassword(ctx, email, password)
		return signInResult{sess: s, user: u}, err
	})
	c.clearPending(gen)
	if err != nil {
		metrics.SignIns.WithLabelValues(signInLabel(err)).Inc()
		next := Snapshot{Status: StatusUnauthenticated, Error: err.Error()}
		if errors.Is(err, ErrTimeout) {
			next.Status = StatusError
		}
		c.commit(gen, next, err)
		c.activity.Record(ctx, audit.Event{Type: audit.EventSignInFailed, Message: email})
		return err
	}

	// Providers that do not emit signed_in still end up authenticated.
	if c.Snapshot().Status == StatusLoading && c.current(gen) {
		if err := c.load(ctx, gen, res.user, &res.sess, ""); err != nil {
			return err
		}
	}

	snap := c.Snapshot()
	if !snap.Authenticated() {
		if err := c.Err(); err != nil {
			return err
		}
		return identity.ErrNoSession
	}
	metrics.SignIns.WithLabelValues("success").Inc()
	if c.profiles != nil && !snap.Degraded {
		if err := c.profiles.TouchLogin(ctx, snap.User.ID); err != nil {
			logger.From(ctx).Warn("touch login failed", "user_id", snap.User.ID, "err", err)
		}
	}
	c.activity.Record(ctx, audit.Event{
		Type:        audit.EventSignIn,
		WorkspaceID: snap.WorkspaceID,
		ActorUserID: snap.User.ID,
		ActorRole:   string(snap.Role),
	})
	return nil
}

// SignOut asks the provider to end the session and always resets local state,
// whatever the provider answered.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	c.pending = nil
	var token, userID, workspaceID string
	if c.snap.Session != nil {
		token = c.snap.Session.AccessToken
	}
	if c.snap.User != nil {
		userID = c.snap.User.ID
	}
	workspaceID = c.snap.WorkspaceID
	c.mu.Unlock()

	var err error
	if c.provider != nil && token != "" {
		_, err = watch(ctx, c.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.provider.SignOut(ctx, token)
		})
		if err != nil {
			logger.From(ctx).Warn("remote sign-out failed", "err", err)
		}
	}

	c.mu.Lock()
	c.gen++
	c.snap = Snapshot{Status: StatusUnauthenticated}
	c.err = nil
	c.mu.Unlock()

	if userID != "" {
		c.activity.Record(ctx, audit.Event{Type: audit.EventSignOut, WorkspaceID: workspaceID, ActorUserID: userID})
	}
	return err
}

// RefreshUser re-reads the identity and then the profile row. A profile failure yields a
// degraded session built from identity metadata; an identity failure clears the user.
func (c *Controller) RefreshUser(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	var sess *identity.Session
	var token string
	if c.snap.Session != nil {
		s := *c.snap.Session
		sess = &s
		token = s.AccessToken
	}
	prefer := c.snap.WorkspaceID
	if c.snap.Status != StatusAuthenticated && canTransition(c.snap.Status, StatusLoading) {
		c.snap.Status = StatusLoading
		c.snap.Error = ""
		c.err = nil
	}
	c.mu.Unlock()

	if c.provider == nil {
		c.fail(gen, store.ErrNotConfigured)
		return store.ErrNotConfigured
	}
	if token == "" {
		c.commit(gen, Snapshot{Status: StatusUnauthenticated}, nil)
		return identity.ErrNoSession
	}

	user, err := watch(ctx, c.timeout, func(ctx context.Context) (identity.User, error) {
		return c.provider.GetUser(ctx, token)
	})
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			c.commit(gen, Snapshot{Status: StatusUnauthenticated}, nil)
			return err
		}
		c.fail(gen, err)
		return err
	}
	return c.load(ctx, gen, user, sess, prefer)
}

// SwitchWorkspace changes the current workspace locally. The target must be one of the
// user's memberships unless the user is a super admin.
func (c *Controller) SwitchWorkspace(ctx context.Context, workspaceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Authenticated() {
		return identity.ErrNoSession
	}
	p := c.snap.User
	if workspaceID == "" {
		return fmt.Errorf("%w: workspace id required", store.ErrInvalidArgument)
	}
	if _, ok := p.MembershipFor(workspaceID); !ok && !rbac.IsSuperAdmin(p.Role) {
		return fmt.Errorf("%w: %v", rbac.ErrForbidden, ErrNotMember)
	}
	// Drops in-flight refreshes that would restore the previous workspace.
	c.gen++
	role := effectiveRole(*p, workspaceID)
	c.snap.WorkspaceID = workspaceID
	c.snap.Role = role
	c.snap.Permissions = c.policy.Effective(role, p.Permissions)
	return nil
}

// HasPermission delegates to the shared policy using the effective role of the current workspace.
func (c *Controller) HasPermission(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snap.Authenticated() {
		return false
	}
	return c.policy.HasPermission(c.snap.Role, c.snap.User.Permissions, name)
}

func (c *Controller) handleEvent(ctx context.Context, e identity.Event) {
	switch e.Type {
	case identity.EventSignedIn:
		c.mu.Lock()
		p := c.pending
		if p == nil || p.email != strings.ToLower(e.User.Email) {
			c.mu.Unlock()
			return
		}
		c.pending = nil
		c.mu.Unlock()
		_ = c.load(ctx, p.gen, e.User, e.Session, "")

	case identity.EventSignedOut:
		c.mu.Lock()
		defer c.mu.Unlock()
		if e.Session != nil && c.ownsSession(e.Session.ID) {
			c.gen++
			c.snap = Snapshot{Status: StatusUnauthenticated}
			c.err = nil
		}

	case identity.EventTokenRefreshed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if e.Session != nil && c.ownsSession(e.PreviousSessionID) {
			sess := *e.Session
			c.snap.Session = &sess
		}

	case identity.EventUserUpdated:
		c.mu.Lock()
		mine := c.snap.User != nil && c.snap.User.ID == e.User.ID
		c.mu.Unlock()
		if mine {
			_ = c.RefreshUser(ctx)
		}
	}
}

// ownsSession must be called with mu held.
func (c *Controller) ownsSession(id string) bool {
	return id != "" && c.snap.Session != nil && c.snap.Session.ID == id
}

func (c *Controller) load(ctx context.Context, gen uint64, user identity.User, sess *identity.Session, prefer string) error {
	profile, err := watch(ctx, c.timeout, func(ctx context.Context) (users.UserProfile, error) {
		if c.profiles == nil {
			return users.UserProfile{}, store.ErrNotConfigured
		}
		return c.profiles.Get(ctx, user.ID)
	})
	degraded := false
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			c.fail(gen, err)
			return err
		}
		logger.From(ctx).Warn("profile load failed, using identity metadata", "user_id", user.ID, "err", err)
		profile = degradedProfile(user)
		degraded = true
	}

	if sess != nil && sess.ID == "" {
		sess.ID = user.TokenSessionID
	}
	if prefer == "" {
		prefer = user.TokenWorkspaceID
	}
	ws := pickWorkspace(profile, prefer, user.TokenWorkspaceID)
	role := effectiveRole(profile, ws)
	c.commit(gen, Snapshot{
		Status:      StatusAuthenticated,
		User:        &profile,
		Role:        role,
		Permissions: c.policy.Effective(role, profile.Permissions),
		WorkspaceID: ws,
		Degraded:    degraded,
		Session:     sess,
	}, nil)
	return nil
}

// fail clears the user and stores err: loading ends in error, an authenticated session ends signed out.
func (c *Controller) fail(gen uint64, err error) {
	c.mu.Lock()
	status := StatusError
	if c.snap.Status == StatusAuthenticated {
		status = StatusUnauthenticated
	}
	c.mu.Unlock()
	c.commit(gen, Snapshot{Status: status, Error: err.Error()}, err)
}

// commit stores next if gen is still current and the transition is allowed.
func (c *Controller) commit(gen uint64, next Snapshot, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !canTransition(c.snap.Status, next.Status) {
		return false
	}
	c.snap = next
	c.err = err
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) clearPending(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && c.pending.gen == gen {
		c.pending = nil
	}
}

// watch runs fn under the session timeout. It returns ErrTimeout at the deadline even if fn
// ignores its context; a late result is then discarded. A panic in fn becomes an error.
func watch[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("identity provider: %v", p)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			metrics.SessionTimeouts.Inc()
			return r.v, ErrTimeout
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.SessionTimeouts.Inc()
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}

func degradedProfile(u identity.User) users.UserProfile {
	return users.UserProfile{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.Metadata.FullName,
		Role:        u.RoleOf(),
		IsActive:    true,
		Permissions: []string{},
		CreatedAt:   u.CreatedAt,
	}
}

func pickWorkspace(p users.UserProfile, candidates ...string) string {
	for _, id := range candidates {
		if id == "" {
			continue
		}
		if _, ok := p.MembershipFor(id); ok || rbac.IsSuperAdmin(p.Role) {
			return id
		}
	}
	if len(p.Memberships) > 0 {
		return p.Memberships[0].WorkspaceID
	}
	return ""
}

// effectiveRole is the higher of the platform role and the workspace membership role.
func effectiveRole(p users.UserProfile, workspaceID string) rbac.Role {
	role := p.Role
	if m, ok := p.MembershipFor(workspaceID); ok {
		role = rbac.Max(role, m.Role)
	}
	return role
}

func signInLabel(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, identity.ErrLocked):
		return "locked"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
