package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"crm-platform/internal/auth"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// LockoutHook is called when repeated failures lock an account.
type LockoutHook func(ctx context.Context, userID string, until time.Time)

type LocalOptions struct {
	Credentials CredentialStore
	Sessions    SessionStore
	Throttle    Throttle
	Tokens      *auth.Manager

	LockDuration time.Duration
	OnLockout    LockoutHook
	// BcryptCost is the password hashing cost; zero means bcrypt.DefaultCost.
	BcryptCost int
}

// Local is the in-process Provider: bcrypt credentials, JWT token pairs and
// server-side session records that make sign-out revoke both tokens.
type Local struct {
	creds    CredentialStore
	sessions SessionStore
	throttle Throttle
	tokens   *auth.Manager
	lockFor  time.Duration
	onLock   LockoutHook
	cost     int
	clock    func() time.Time

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

var _ Provider = (*Local)(nil)

// NewLocal returns a provider. Missing credentials or tokens make every call return ErrNotConfigured.
func NewLocal(opts LocalOptions) *Local {
	if opts.Sessions == nil {
		opts.Sessions = NewMemorySessions()
	}
	if opts.Throttle == nil {
		opts.Throttle = NewMemoryThrottle(ThrottleLimits{LockDuration: opts.LockDuration})
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = 15 * time.Minute
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Local{
		creds:     opts.Credentials,
		sessions:  opts.Sessions,
		throttle:  opts.Throttle,
		tokens:    opts.Tokens,
		lockFor:   opts.LockDuration,
		onLock:    opts.OnLockout,
		cost:      opts.BcryptCost,
		clock:     time.Now,
		listeners: map[int]Listener{},
	}
}

func (l *Local) configured() bool { return l.creds != nil && l.tokens != nil }

func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (Session, User, error) {
	if !l.configured() {
		return Session{}, User{}, store.ErrNotConfigured
	}
	email = normalizeEmail(email)
	key := "email:" + email

	locked, err := l.throttle.Locked(ctx, key)
	if err != nil {
		return Session{}, User{}, err
	}
	if locked {
		return Session{}, User{}, ErrLocked
	}

	cred, err := l.creds.ByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Session{}, User{}, err
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return Session{}, User{}, l.fail(ctx, key, cred.UserID)
	}
	if err := l.throttle.Reset(ctx, key); err != nil {
		logger.From(ctx).Warn("sign-in throttle reset failed", "err", err)
	}

	user := cred.user()
	sess, err := l.newSession(ctx, user, "")
	if err != nil {
		return Session{}, User{}, err
	}
	user.TokenSessionID = sess.ID
	user.TokenWorkspaceID = sess.WorkspaceID
	l.emit(ctx, Event{Type: EventSignedIn, User: user, Session: &sess})
	return sess, user, nil
}

func (l *Local) fail(ctx context.Context, key, userID string) error {
	lockedNow, err := l.throttle.RecordFailure(ctx, key)
	if err != nil {
		return err
	}
	if !lockedNow {
		return ErrInvalidCredentials
	}
	if userID != "" && l.onLock != nil {
		l.onLock(ctx, userID, l.clock().Add(l.lockFor))
	}
	return ErrLocked
}

func (l *Local) GetUser(ctx context.Context, accessToken string) (User, error) {
	if !l.configured() {
		return User{}, store.ErrNotConfigured
	}
	claims, rec, err := l.resolve(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return User{}, err
	}
	cred, err := l.creds.ByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return User{}, ErrNoSession
		}
		return User{}, err
	}
	u := cred.user()
	u.TokenSessionID = rec.ID
	u.TokenWorkspaceID = rec.WorkspaceID
	return u, nil
}

func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	if !l.configured() {
		return store.ErrNotConfigured
	}
	claims, rec, err := l.resolve(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return err
	}
	if err := l.sessions.Revoke(ctx, rec.ID); err != nil {
		return err
	}
	l.emit(ctx, Event{
		Type:    EventSignedOut,
		User:    User{ID: claims.UserID, Email: claims.Email},
		Session: &Session{ID: rec.ID, UserID: rec.UserID, WorkspaceID: rec.WorkspaceID},
	})
	return nil
}

// Refresh rotates the session: the old pair is revoked and a new one issued.
func (l *Local) Refresh(ctx context.Context, refreshToken string) (Session, User, error) {
	if !l.configured() {
		return Session{}, User{}, store.ErrNotConfigured
	}
	claims, rec, err := l.resolve(ctx, refreshToken, auth.TokenTypeRefresh)
	if err != nil {
		return Session{}, User{}, err
	}
	return l.rotate(ctx, claims.UserID, rec, rec.WorkspaceID)
}

// IssueForWorkspace rotates the session bound to accessToken onto workspaceID.
// Membership is checked by the caller.
func (l *Local) IssueForWorkspace(ctx context.Context, accessToken, workspaceID string) (Session, error) {
	if !l.configured() {
		return Session{}, store.ErrNotConfigured
	}
	claims, rec, err := l.resolve(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return Session{}, err
	}
	sess, _, err := l.rotate(ctx, claims.UserID, rec, workspaceID)
	return sess, err
}

func (l *Local) rotate(ctx context.Context, userID string, old SessionRecord, workspaceID string) (Session, User, error) {
	cred, err := l.creds.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, User{}, ErrNoSession
		}
		return Session{}, User{}, err
	}
	if err := l.sessions.Revoke(ctx, old.ID); err != nil {
		return Session{}, User{}, err
	}
	user := cred.user()
	sess, err := l.newSession(ctx, user, workspaceID)
	if err != nil {
		return Session{}, User{}, err
	}
	user.TokenSessionID = sess.ID
	user.TokenWorkspaceID = workspaceID
	l.emit(ctx, Event{Type: EventTokenRefreshed, User: user, Session: &sess, PreviousSessionID: old.ID})
	return sess, user, nil
}

func (l *Local) SignUp(ctx context.Context, email, password string, meta Metadata) (User, error) {
	if !l.configured() {
		return User{}, store.ErrNotConfigured
	}
	email = normalizeEmail(email)
	if email == "" {
		return User{}, fmt.Errorf("%w: email required", store.ErrInvalidArgument)
	}
	if len(password) < 8 || len(password) > 72 {
		return User{}, fmt.Errorf("%w: %v", store.ErrInvalidArgument, ErrWeakPassword)
	}
	if _, err := rbac.ParseRole(meta.Role); err != nil {
		meta.Role = string(rbac.RoleMember)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	cred := Credential{
		UserID:       uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Metadata:     meta,
		CreatedAt:    l.clock().UTC(),
	}
	if err := l.creds.Create(ctx, cred); err != nil {
		return User{}, err
	}
	user := cred.user()
	l.emit(ctx, Event{Type: EventUserUpdated, User: user})
	return user, nil
}

// Register creates credentials for a new profile; it backs invitations and bootstrap sign-up.
func (l *Local) Register(ctx context.Context, email, password, fullName string, role rbac.Role) (string, error) {
	u, err := l.SignUp(ctx, email, password, Metadata{FullName: strings.TrimSpace(fullName), Role: string(role)})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// ChangePassword replaces the password of the access token's user after checking the current one.
// Existing sessions stay valid.
func (l *Local) ChangePassword(ctx context.Context, accessToken, current, next string) (User, error) {
	if !l.configured() {
		return User{}, store.ErrNotConfigured
	}
	if len(next) < 8 || len(next) > 72 {
		return User{}, fmt.Errorf("%w: %v", store.ErrInvalidArgument, ErrWeakPassword)
	}
	claims, _, err := l.resolve(ctx, accessToken, auth.TokenTypeAccess)
	if err != nil {
		return User{}, err
	}
	cred, err := l.creds.ByID(ctx, claims.UserID)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(current)) != nil {
		return User{}, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), l.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	if err := l.creds.UpdatePassword(ctx, cred.UserID, string(hash)); err != nil {
		return User{}, err
	}
	return cred.user(), nil
}

// Unlock clears the failed sign-in counter and lock of userID's email.
func (l *Local) Unlock(ctx context.Context, userID string) error {
	if !l.configured() {
		return store.ErrNotConfigured
	}
	cred, err := l.creds.ByID(ctx, userID)
	if err != nil {
		return err
	}
	return l.throttle.Reset(ctx, "email:"+normalizeEmail(cred.Email))
}

// SetRole keeps the metadata role, the fallback of a degraded session, in step with the profile.
func (l *Local) SetRole(ctx context.Context, userID string, role rbac.Role) error {
	if !l.configured() {
		return store.ErrNotConfigured
	}
	if err := l.creds.UpdateRole(ctx, userID, string(role)); err != nil {
		return err
	}
	cred, err := l.creds.ByID(ctx, userID)
	if err != nil {
		return err
	}
	l.emit(ctx, Event{Type: EventUserUpdated, User: cred.user()})
	return nil
}

func (l *Local) OnAuthStateChange(fn Listener) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *Local) emit(ctx context.Context, e Event) {
	l.mu.RLock()
	fns := make([]Listener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()
	for _, fn := range fns {
		fn(ctx, e)
	}
}

func (l *Local) newSession(ctx context.Context, user User, workspaceID string) (Session, error) {
	now := l.clock()
	sid := uuid.NewString()
	pair, err := l.tokens.IssuePair(now, auth.Subject{
		UserID:      user.ID,
		Email:       user.Email,
		WorkspaceID: workspaceID,
		Role:        string(user.RoleOf()),
		SessionID:   sid,
	})
	if err != nil {
		return Session{}, err
	}
	rec := SessionRecord{
		ID:          sid,
		UserID:      user.ID,
		WorkspaceID: workspaceID,
		CreatedAt:   now.UTC(),
		ExpiresAt:   pair.RefreshExpiresAt,
	}
	if err := l.sessions.Save(ctx, rec); err != nil {
		return Session{}, err
	}
	return Session{
		ID:               sid,
		UserID:           user.ID,
		WorkspaceID:      workspaceID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}, nil
}

// resolve verifies a token and its server-side session. Every failure maps to ErrNoSession.
func (l *Local) resolve(ctx context.Context, token string, typ auth.TokenType) (auth.Claims, SessionRecord, error) {
	if token == "" {
		return auth.Claims{}, SessionRecord{}, ErrNoSession
	}
	claims, err := l.tokens.Verify(token, typ, l.clock())
	if err != nil {
		return auth.Claims{}, SessionRecord{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	rec, err := l.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return auth.Claims{}, SessionRecord{}, err
	}
	if rec.UserID != claims.UserID {
		return auth.Claims{}, SessionRecord{}, ErrNoSession
	}
	return claims, rec, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
