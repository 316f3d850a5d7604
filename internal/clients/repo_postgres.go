package clients

import (
	"context"
	"database/sql"

	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Revenue counts paid invoices only.
const clientSelect = `
SELECT c.id, c.workspace_id, c.company_name, c.contact_name, c.email, c.phone, c.website, c.status,
       c.industry, c.notes,
       (SELECT COUNT(*) FROM projects p WHERE p.client_id = c.id),
       COALESCE((SELECT SUM(i.amount_minor) FROM invoices i WHERE i.client_id = c.id AND i.status = 'paid'), 0),
       c.created_at, c.updated_at
FROM clients c
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.CompanyName, &c.ContactName, &c.Email, &c.Phone, &c.Website,
		&c.Status, &c.Industry, &c.Notes, &c.ProjectCount, &c.TotalRevenueMinor, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *PostgresRepo) Insert(ctx context.Context, c Client) error {
	const q = `
INSERT INTO clients (id, workspace_id, company_name, contact_name, email, phone, website, status, industry, notes, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.WorkspaceID, c.CompanyName, c.ContactName, c.Email, c.Phone,
		c.Website, c.Status, c.Industry, c.Notes, c.CreatedAt, c.UpdatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Client, error) {
	c, err := scanClient(r.db.QueryRowContext(ctx, clientSelect+`WHERE c.workspace_id = $1 AND c.id = $2`, workspaceID, id))
	return c, store.MapError(err)
}

func (r *PostgresRepo) List(ctx context.Context, f ListFilter) ([]Client, error) {
	const where = `
WHERE c.workspace_id = $1
  AND ($2 = '' OR c.company_name ILIKE $3 OR c.contact_name ILIKE $3 OR c.email ILIKE $3)
  AND ($4 = '' OR c.status = $4)
ORDER BY c.created_at DESC
LIMIT $5 OFFSET $6
`
	rows, err := r.db.QueryContext(ctx, clientSelect+where,
		f.WorkspaceID, f.Search, store.Like(f.Search), f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, c Client) error {
	const q = `
UPDATE clients
SET company_name = $3, contact_name = $4, email = $5, phone = $6, website = $7, status = $8,
    industry = $9, notes = $10, updated_at = $11
WHERE workspace_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, c.WorkspaceID, c.ID, c.CompanyName, c.ContactName, c.Email, c.Phone,
		c.Website, c.Status, c.Industry, c.Notes, c.UpdatedAt)
	return affected(res, err)
}

func (r *PostgresRepo) Delete(ctx context.Context, workspaceID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	return affected(res, err)
}

func (r *PostgresRepo) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE c.status = 'active'),
       COUNT(*) FILTER (WHERE c.status = 'lead'),
       COALESCE((SELECT SUM(i.amount_minor) FROM invoices i WHERE i.workspace_id = $1 AND i.status = 'paid'), 0)
FROM clients c
WHERE c.workspace_id = $1
`
	var st Stats
	err := r.db.QueryRowContext(ctx, q, workspaceID).Scan(&st.Total, &st.Active, &st.Leads, &st.RevenueMinor)
	return st, store.MapError(err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return store.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
