package users

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const profileSelect = `
SELECT p.id, p.email, p.full_name, p.role, p.is_active, p.locked_until, p.last_login_at, p.last_activity_at,
       p.created_at, p.updated_at,
       COALESCE((SELECT string_agg(up.permission, ',' ORDER BY up.permission)
                 FROM user_permissions up WHERE up.user_id = p.id), '')
FROM user_profiles p
`

// profileFilter binds $1..$5 to ListFilter fields.
const profileFilter = `
WHERE ($1 = '' OR p.email ILIKE $2 OR p.full_name ILIKE $2)
  AND ($3 = '' OR p.role = $3)
  AND ($4::boolean IS NULL OR p.is_active = $4)
  AND ($5::text[] IS NULL OR p.id::text = ANY($5))
`

func filterArgs(f ListFilter) []any {
	var active any
	if f.Active != nil {
		active = *f.Active
	}
	var ids any
	if f.ids != nil {
		ids = f.ids
	}
	return []any{f.Search, store.Like(f.Search), f.Role, active, ids}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (UserProfile, error) {
	var (
		p                       UserProfile
		locked, login, activity sql.NullTime
		perms                   string
	)
	if err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Role, &p.IsActive, &locked, &login, &activity,
		&p.CreatedAt, &p.UpdatedAt, &perms); err != nil {
		return UserProfile{}, err
	}
	p.LockedUntil = store.TimePtr(locked)
	p.LastLoginAt = store.TimePtr(login)
	p.LastActivityAt = store.TimePtr(activity)
	p.Permissions = []string{}
	if perms != "" {
		p.Permissions = strings.Split(perms, ",")
	}
	return p, nil
}

func (r *PostgresRepo) GetProfile(ctx context.Context, id string) (UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx, profileSelect+`WHERE p.id = $1`, id))
	return p, store.MapError(err)
}

func (r *PostgresRepo) ListProfiles(ctx context.Context, f ListFilter) ([]UserProfile, error) {
	q := profileSelect + profileFilter + `ORDER BY p.created_at DESC LIMIT $6 OFFSET $7`
	args := append(filterArgs(f), f.Limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]UserProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Stats(ctx context.Context, f ListFilter, now time.Time) (Stats, error) {
	q := `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE p.is_active),
       COUNT(*) FILTER (WHERE p.role IN ('admin', 'super_admin')),
       COUNT(*) FILTER (WHERE p.locked_until > $6)
FROM user_profiles p
` + profileFilter
	var st Stats
	err := r.db.QueryRowContext(ctx, q, append(filterArgs(f), now)...).Scan(&st.Total, &st.Active, &st.Admins, &st.Locked)
	return st, store.MapError(err)
}

func (r *PostgresRepo) CountProfiles(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_profiles`).Scan(&n)
	return n, store.MapError(err)
}

func (r *PostgresRepo) InsertProfile(ctx context.Context, p UserProfile) error {
	const q = `
INSERT INTO user_profiles (id, email, full_name, role, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Email, p.FullName, p.Role, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) UpdateRole(ctx context.Context, id string, role rbac.Role, now time.Time) error {
	return r.exec(ctx, `UPDATE user_profiles SET role = $2, updated_at = $3 WHERE id = $1`, id, role, now)
}

func (r *PostgresRepo) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	return r.exec(ctx, `UPDATE user_profiles SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, now)
}

func (r *PostgresRepo) SetLockedUntil(ctx context.Context, id string, until *time.Time, now time.Time) error {
	return r.exec(ctx, `UPDATE user_profiles SET locked_until = $2, updated_at = $3 WHERE id = $1`, id, store.NullableTime(until), now)
}

func (r *PostgresRepo) TouchLogin(ctx context.Context, id string, now time.Time) error {
	return r.exec(ctx, `UPDATE user_profiles SET last_login_at = $2, last_activity_at = $2 WHERE id = $1`, id, now)
}

func (r *PostgresRepo) GrantPermission(ctx context.Context, id, permission, grantedBy string, now time.Time) error {
	const q = `
INSERT INTO user_permissions (user_id, permission, granted_by, granted_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, permission) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q, id, permission, store.NullableString(grantedBy), now)
	return store.MapError(err)
}

func (r *PostgresRepo) RevokePermission(ctx context.Context, id, permission string) error {
	return r.exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission = $2`, id, permission)
}

// exec runs a single-row statement and reports ErrNotFound when nothing matched.
func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return store.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) InsertInvitation(ctx context.Context, inv Invitation) error {
	const q = `
INSERT INTO invitations (id, token, email, role, workspace_id, invited_by, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err := r.db.ExecContext(ctx, q, inv.ID, inv.Token, inv.Email, inv.Role,
		store.NullableString(inv.WorkspaceID), store.NullableString(inv.InvitedBy), inv.ExpiresAt, inv.CreatedAt)
	return store.MapError(err)
}

const invitationSelect = `
SELECT id, token, email, role, COALESCE(workspace_id::text, ''), COALESCE(invited_by::text, ''),
       expires_at, accepted_at, created_at
FROM invitations
`

func scanInvitation(row rowScanner) (Invitation, error) {
	var inv Invitation
	var accepted sql.NullTime
	if err := row.Scan(&inv.ID, &inv.Token, &inv.Email, &inv.Role, &inv.WorkspaceID, &inv.InvitedBy,
		&inv.ExpiresAt, &accepted, &inv.CreatedAt); err != nil {
		return Invitation{}, err
	}
	inv.AcceptedAt = store.TimePtr(accepted)
	return inv, nil
}

func (r *PostgresRepo) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, invitationSelect+`WHERE token = $1`, token))
	return inv, store.MapError(err)
}

// MarkInvitationAccepted only succeeds once per invitation.
func (r *PostgresRepo) MarkInvitationAccepted(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`, id, now)
	if err != nil {
		return store.MapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r *PostgresRepo) ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	q := invitationSelect + `WHERE ($1 = '' OR workspace_id::text = $1) ORDER BY created_at DESC LIMIT 200`
	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()
	out := make([]Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		inv.Token = ""
		out = append(out, inv)
	}
	return out, rows.Err()
}
