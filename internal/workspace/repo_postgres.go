package workspace

import (
	"context"
	"database/sql"

	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, w Workspace) error {
	const q = `INSERT INTO workspaces (id, name, slug, created_at) VALUES ($1,$2,$3,$4)`
	_, err := r.db.ExecContext(ctx, q, w.ID, w.Name, w.Slug, w.CreatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Workspace, error) {
	const q = `SELECT id, name, slug, created_at FROM workspaces WHERE id = $1`
	var w Workspace
	err := r.db.QueryRowContext(ctx, q, id).Scan(&w.ID, &w.Name, &w.Slug, &w.CreatedAt)
	return w, store.MapError(err)
}

func (r *PostgresRepo) ListAll(ctx context.Context) ([]Workspace, error) {
	const q = `SELECT id, name, slug, created_at FROM workspaces ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()
	out := make([]Workspace, 0)
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.Slug, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpsertMember(ctx context.Context, m Membership) error {
	const q = `
INSERT INTO workspace_memberships (user_id, workspace_id, role, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, workspace_id) DO UPDATE SET role = EXCLUDED.role
`
	_, err := r.db.ExecContext(ctx, q, m.UserID, m.WorkspaceID, m.Role, m.CreatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	const q = `DELETE FROM workspace_memberships WHERE workspace_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, q, workspaceID, userID)
	if err != nil {
		return store.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const membershipSelect = `
SELECT m.user_id, m.workspace_id, w.name, m.role, m.created_at
FROM workspace_memberships m
JOIN workspaces w ON w.id = m.workspace_id
`

func (r *PostgresRepo) ListForUser(ctx context.Context, userID string) ([]Membership, error) {
	return r.list(ctx, membershipSelect+`WHERE m.user_id = $1 ORDER BY m.created_at`, userID)
}

func (r *PostgresRepo) ListMembers(ctx context.Context, workspaceID string) ([]Membership, error) {
	return r.list(ctx, membershipSelect+`WHERE m.workspace_id = $1 ORDER BY m.created_at`, workspaceID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, arg string) ([]Membership, error) {
	rows, err := r.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()
	out := make([]Membership, 0)
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.WorkspaceID, &m.WorkspaceName, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
