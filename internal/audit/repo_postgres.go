package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"crm-platform/internal/store"
)

// PostgresRepo writes to activity_logs. It exposes no update or delete path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var meta any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	const q = `
INSERT INTO activity_logs (
  id, workspace_id, type, actor_user_id, actor_role, ip_address, target_type, target_id, message, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		store.NullableString(e.WorkspaceID),
		e.Type,
		store.NullableString(e.ActorUserID),
		e.ActorRole,
		e.IPAddress,
		e.TargetType,
		e.TargetID,
		e.Message,
		meta,
		e.CreatedAt,
	)
	return store.MapError(err)
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID string, limit int) ([]Event, error) {
	const q = `
SELECT id, COALESCE(workspace_id::text, ''), type, COALESCE(actor_user_id::text, ''), actor_role, ip_address,
       target_type, target_id, message, COALESCE(metadata::text, ''), created_at
FROM activity_logs
WHERE ($1 = '' OR workspace_id::text = $1)
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, limit)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		var meta string
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Type, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.TargetType, &e.TargetID, &e.Message, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
