package projects

import (
	"context"
	"database/sql"

	"crm-platform/internal/store"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const projectSelect = `
SELECT p.id, p.workspace_id, COALESCE(p.client_id::text, ''), COALESCE(c.company_name, ''), p.name, p.description,
       p.status, p.budget_minor, p.spent_minor, p.start_date, p.due_date,
       COALESCE((SELECT COUNT(*) FILTER (WHERE t.status = 'done') * 100 / NULLIF(COUNT(*), 0)
                 FROM tasks t WHERE t.project_id = p.id), 0),
       (SELECT COUNT(*) FROM tasks t WHERE t.project_id = p.id),
       p.created_at, p.updated_at
FROM projects p
LEFT JOIN clients c ON c.id = p.client_id
`

const taskSelect = `
SELECT t.id, t.workspace_id, t.project_id, t.title, t.description, t.status, t.priority,
       COALESCE(t.assignee_id::text, ''), COALESCE(u.full_name, ''), t.position, t.due_date,
       t.created_at, t.updated_at
FROM tasks t
LEFT JOIN user_profiles u ON u.id = t.assignee_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var (
		p          Project
		start, due sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.ClientID, &p.ClientName, &p.Name, &p.Description, &p.Status,
		&p.BudgetMinor, &p.SpentMinor, &start, &due, &p.Progress, &p.TaskCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Project{}, err
	}
	p.StartDate = store.TimePtr(start)
	p.DueDate = store.TimePtr(due)
	return p, nil
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t   Task
		due sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority,
		&t.AssigneeID, &t.AssigneeName, &t.Position, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.DueDate = store.TimePtr(due)
	return t, nil
}

func (r *PostgresRepo) InsertProject(ctx context.Context, p Project) error {
	const q = `
INSERT INTO projects (id, workspace_id, client_id, name, description, status, budget_minor, spent_minor,
                      start_date, due_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.WorkspaceID, store.NullableString(p.ClientID), p.Name, p.Description,
		p.Status, p.BudgetMinor, p.SpentMinor, store.NullableTime(p.StartDate), store.NullableTime(p.DueDate),
		p.CreatedAt, p.UpdatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) GetProject(ctx context.Context, workspaceID, id string) (Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, projectSelect+`WHERE p.workspace_id = $1 AND p.id = $2`, workspaceID, id))
	return p, store.MapError(err)
}

func (r *PostgresRepo) ListProjects(ctx context.Context, f ListFilter) ([]Project, error) {
	const where = `
WHERE p.workspace_id = $1
  AND ($2 = '' OR p.client_id::text = $2)
  AND ($3 = '' OR p.name ILIKE $4 OR c.company_name ILIKE $4)
  AND ($5 = '' OR p.status = $5)
ORDER BY p.created_at DESC
LIMIT $6 OFFSET $7
`
	rows, err := r.db.QueryContext(ctx, projectSelect+where,
		f.WorkspaceID, f.ClientID, f.Search, store.Like(f.Search), f.Status, f.Limit, f.Offset)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateProject(ctx context.Context, p Project) error {
	const q = `
UPDATE projects
SET client_id = $3, name = $4, description = $5, status = $6, budget_minor = $7, spent_minor = $8,
    start_date = $9, due_date = $10, updated_at = $11
WHERE workspace_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, p.WorkspaceID, p.ID, store.NullableString(p.ClientID), p.Name, p.Description,
		p.Status, p.BudgetMinor, p.SpentMinor, store.NullableTime(p.StartDate), store.NullableTime(p.DueDate), p.UpdatedAt)
	return affected(res, err)
}

// DeleteProject removes the project; its tasks go with it (ON DELETE CASCADE).
func (r *PostgresRepo) DeleteProject(ctx context.Context, workspaceID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	return affected(res, err)
}

func (r *PostgresRepo) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	const q = `
SELECT v.status, COUNT(*), COALESCE(SUM(v.budget_minor), 0), COALESCE(SUM(v.spent_minor), 0), COALESCE(SUM(v.progress), 0)
FROM (
  SELECT p.status, p.budget_minor, p.spent_minor,
         COALESCE((SELECT COUNT(*) FILTER (WHERE t.status = 'done') * 100 / NULLIF(COUNT(*), 0)
                   FROM tasks t WHERE t.project_id = p.id), 0) AS progress
  FROM projects p
  WHERE p.workspace_id = $1
) v
GROUP BY v.status
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return Stats{}, store.MapError(err)
	}
	defer rows.Close()

	st := Stats{ByStatus: map[Status]int{}}
	var progressSum int64
	for rows.Next() {
		var (
			status         Status
			n              int
			budget, spent  int64
			statusProgress int64
		)
		if err := rows.Scan(&status, &n, &budget, &spent, &statusProgress); err != nil {
			return Stats{}, err
		}
		st.Total += n
		st.ByStatus[status] = n
		st.BudgetMinor += budget
		st.SpentMinor += spent
		progressSum += statusProgress
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if st.Total > 0 {
		st.AverageProgress = int(progressSum / int64(st.Total))
	}
	return st, nil
}

func (r *PostgresRepo) InsertTask(ctx context.Context, t Task) error {
	const q = `
INSERT INTO tasks (id, workspace_id, project_id, title, description, status, priority, assignee_id, position,
                   due_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.WorkspaceID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		store.NullableString(t.AssigneeID), t.Position, store.NullableTime(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return store.MapError(err)
}

func (r *PostgresRepo) GetTask(ctx context.Context, workspaceID, id string) (Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+`WHERE t.workspace_id = $1 AND t.id = $2`, workspaceID, id))
	return t, store.MapError(err)
}

func (r *PostgresRepo) ListTasks(ctx context.Context, workspaceID, projectID string) ([]Task, error) {
	rows, err := r.db.QueryContext(ctx, taskSelect+`WHERE t.workspace_id = $1 AND t.project_id = $2 ORDER BY t.position, t.created_at`,
		workspaceID, projectID)
	if err != nil {
		return nil, store.MapError(err)
	}
	defer rows.Close()

	out := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateTask(ctx context.Context, t Task) error {
	const q = `
UPDATE tasks
SET title = $3, description = $4, priority = $5, assignee_id = $6, due_date = $7, updated_at = $8
WHERE workspace_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, t.WorkspaceID, t.ID, t.Title, t.Description, t.Priority,
		store.NullableString(t.AssigneeID), store.NullableTime(t.DueDate), t.UpdatedAt)
	return affected(res, err)
}

func (r *PostgresRepo) SaveOrder(ctx context.Context, workspaceID string, tasks []Task) error {
	const q = `
UPDATE tasks SET status = $3, position = $4, updated_at = $5
WHERE workspace_id = $1 AND id = $2
`
	return store.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, t := range tasks {
			res, err := tx.ExecContext(ctx, q, workspaceID, t.ID, t.Status, t.Position, t.UpdatedAt)
			if err := affected(res, err); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) DeleteTask(ctx context.Context, workspaceID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	return affected(res, err)
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
