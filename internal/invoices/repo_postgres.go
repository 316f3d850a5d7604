package invoices

import (
	"context"
	"database/sql"
	"time"

	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const invoiceColumns = `
id, workspace_id, client_id, COALESCE(project_id::text, ''), number, amount_minor, currency, status, payment_ref,
issued_at, due_at, paid_at, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (Invoice, error) {
	var (
		inv  Invoice
		paid sql.NullTime
	)
	if err := row.Scan(&inv.ID, &inv.WorkspaceID, &inv.ClientID, &inv.ProjectID, &inv.Number, &inv.AmountMinor,
		&inv.Currency, &inv.Status, &inv.PaymentRef, &inv.IssuedAt, &inv.DueAt, &paid, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	inv.PaidAt = store.TimePtr(paid)
	return inv, nil
}

func (r *PostgresRepo) Insert(ctx context.Context, inv Invoice) error {
	const q = `
INSERT INTO invoices (id, workspace_id, client_id, project_id, number, amount_minor, currency, status, payment_ref,
                      issued_at, due_at, paid_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`
	_, err := r.db.ExecContext(ctx, q, inv.ID, inv.WorkspaceID, inv.ClientID, store.NullableString(inv.ProjectID),
		inv.Number, inv.AmountMinor, inv.Currency, inv.Status, inv.PaymentRef, inv.IssuedAt, inv.DueAt,
		store.NullableTime(inv.PaidAt), inv.CreatedAt, inv.UpdatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE workspace_id = $1 AND id = $2`
	inv, err := scanInvoice(r.db.QueryRowContext(ctx, q, workspaceID, id))
	return inv, store.MapError(err)
}

// List filters on the reported status, so "overdue" matches sent invoices past due and
// "sent" excludes them.
func (r *PostgresRepo) List(ctx context.Context, f ListFilter, now time.Time) ([]Invoice, error) {
	q := `SELECT ` + invoiceColumns + ` FROM invoices
WHERE workspace_id = $1
  AND ($2 = '' OR client_id::text = $2)
  AND ($3 = ''
       OR ($3 = 'overdue' AND status = 'sent' AND due_at < $4)
       OR ($3 = 'sent' AND status = 'sent' AND due_at >= $4)
       OR ($3 NOT IN ('sent', 'overdue') AND status = $3))
ORDER BY issued_at DESC
LIMIT $5 OFFSET $6
`
	rows, err := r.db.QueryContext(ctx, q, f.WorkspaceID, f.ClientID, f.Status, now, f.Limit, f.Offset)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Mutate(ctx context.Context, workspaceID, id string, fn Mutation) (Invoice, error) {
	var out Invoice
	err := store.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Serialise concurrent state changes on the same invoice.
		q := `SELECT ` + invoiceColumns + ` FROM invoices WHERE workspace_id = $1 AND id = $2 FOR UPDATE`
		inv, err := scanInvoice(tx.QueryRowContext(ctx, q, workspaceID, id))
		if err != nil {
			return store.MapError(err)
		}
		changed, err := fn(&inv)
		if err != nil {
			return err
		}
		out = inv
		if !changed {
			return nil
		}
		const upd = `
UPDATE invoices SET status = $3, payment_ref = $4, paid_at = $5, updated_at = $6
WHERE workspace_id = $1 AND id = $2
`
		_, err = tx.ExecContext(ctx, upd, workspaceID, id, inv.Status, inv.PaymentRef, store.NullableTime(inv.PaidAt), inv.UpdatedAt)
		return store.MapError(err)
	})
	return out, err
}

func (r *PostgresRepo) Stats(ctx context.Context, workspaceID string, now time.Time) (Stats, error) {
	const q = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'draft'),
       COUNT(*) FILTER (WHERE status = 'sent' AND due_at < $2),
       COALESCE(SUM(amount_minor) FILTER (WHERE status = 'paid'), 0),
       COALESCE(SUM(amount_minor) FILTER (WHERE status = 'sent'), 0)
FROM invoices
WHERE workspace_id = $1
`
	var st Stats
	err := r.db.QueryRowContext(ctx, q, workspaceID, now).Scan(&st.Total, &st.Drafts, &st.Overdue, &st.PaidMinor, &st.OutstandingMinor)
	return st, store.MapError(err)
}
