package extraction

import (
	"context"
	"database/sql"
	"encoding/json"

	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const extractionSelect = `
SELECT id, workspace_id, user_id, input_text, fields, extractor, status, client_id, created_at
FROM ai_extractions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row rowScanner) (Extraction, error) {
	var (
		e        Extraction
		fields   []byte
		clientID sql.NullString
	)
	if err := row.Scan(&e.ID, &e.WorkspaceID, &e.UserID, &e.InputText, &fields, &e.Extractor, &e.Status,
		&clientID, &e.CreatedAt); err != nil {
		return Extraction{}, err
	}
	e.ClientID = clientID.String
	if err := json.Unmarshal(fields, &e.Fields); err != nil {
		return Extraction{}, err
	}
	return e, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, e Extraction) error {
	const q = `
INSERT INTO ai_extractions (id, workspace_id, user_id, input_text, fields, extractor, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q, e.ID, e.WorkspaceID, e.UserID, e.InputText, fields, e.Extractor, e.Status, e.CreatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Extraction, error) {
	e, err := scanExtraction(r.db.QueryRowContext(ctx, extractionSelect+`WHERE workspace_id = $1 AND id = $2`, workspaceID, id))
	return e, store.MapError(err)
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID string, limit int) ([]Extraction, error) {
	rows, err := r.db.QueryContext(ctx, extractionSelect+`WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2`, workspaceID, limit)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Extraction, 0)
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkApplied(ctx context.Context, workspaceID, id, clientID string) error {
	const q = `
UPDATE ai_extractions SET status = $4, client_id = $3
WHERE workspace_id = $1 AND id = $2 AND status <> $4
`
	res, err := r.db.ExecContext(ctx, q, workspaceID, id, clientID, StatusApplied)
	if err != nil {
		return store.MapError(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		// Either missing or already applied.
		if _, err := r.Get(ctx, workspaceID, id); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return nil
}
