package identity

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"crm-platform/internal/store"
)

type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	Metadata     Metadata
	CreatedAt    time.Time
}

func (c Credential) user() User {
	return User{ID: c.UserID, Email: c.Email, Metadata: c.Metadata, CreatedAt: c.CreatedAt}
}

type CredentialStore interface {
	Create(ctx context.Context, c Credential) error
	ByEmail(ctx context.Context, email string) (Credential, error)
	ByID(ctx context.Context, id string) (Credential, error)
	UpdatePassword(ctx context.Context, id, hash string) error
	UpdateRole(ctx context.Context, id, role string) error
}

type MemoryCredentials struct {
	mu   sync.Mutex
	byID map[string]Credential
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{byID: map[string]Credential{}}
}

func (m *MemoryCredentials) Create(ctx context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if strings.EqualFold(existing.Email, c.Email) {
			return store.ErrConflict
		}
	}
	m.byID[c.UserID] = c
	return nil
}

func (m *MemoryCredentials) ByEmail(ctx context.Context, email string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byID {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return Credential{}, store.ErrNotFound
}

func (m *MemoryCredentials) ByID(ctx context.Context, id string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (m *MemoryCredentials) UpdatePassword(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	c.PasswordHash = hash
	m.byID[id] = c
	return nil
}

func (m *MemoryCredentials) UpdateRole(ctx context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Metadata.Role = role
	m.byID[id] = c
	return nil
}

// PostgresCredentials reads and writes auth_users.
type PostgresCredentials struct {
	db *sql.DB
}

func NewPostgresCredentials(db *sql.DB) *PostgresCredentials { return &PostgresCredentials{db: db} }

func (p *PostgresCredentials) Create(ctx context.Context, c Credential) error {
	const q = `
INSERT INTO auth_users (id, email, password_hash, full_name, role, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := p.db.ExecContext(ctx, q, c.UserID, c.Email, c.PasswordHash, c.Metadata.FullName, c.Metadata.Role, c.CreatedAt)
	return store.MapError(err)
}

const credentialSelect = `SELECT id, email, password_hash, full_name, role, created_at FROM auth_users `

func (p *PostgresCredentials) ByEmail(ctx context.Context, email string) (Credential, error) {
	return p.one(ctx, credentialSelect+`WHERE lower(email) = lower($1)`, email)
}

func (p *PostgresCredentials) ByID(ctx context.Context, id string) (Credential, error) {
	return p.one(ctx, credentialSelect+`WHERE id = $1`, id)
}

func (p *PostgresCredentials) UpdatePassword(ctx context.Context, id, hash string) error {
	return p.update(ctx, `UPDATE auth_users SET password_hash = $2 WHERE id = $1`, id, hash)
}

func (p *PostgresCredentials) UpdateRole(ctx context.Context, id, role string) error {
	return p.update(ctx, `UPDATE auth_users SET role = $2 WHERE id = $1`, id, role)
}

func (p *PostgresCredentials) update(ctx context.Context, q, id, value string) error {
	res, err := p.db.ExecContext(ctx, q, id, value)
	if err != nil {
		return store.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (p *PostgresCredentials) one(ctx context.Context, q, arg string) (Credential, error) {
	var c Credential
	err := p.db.QueryRowContext(ctx, q, arg).Scan(&c.UserID, &c.Email, &c.PasswordHash, &c.Metadata.FullName, &c.Metadata.Role, &c.CreatedAt)
	return c, store.MapError(err)
}
