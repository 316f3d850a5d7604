package projects

import (
	"context"
	"sort"
	"strings"
	"sync"

	"crm-platform/internal/store"
)

// MemoryRepo keeps projects and tasks in memory; progress is derived on read like the SQL view.
type MemoryRepo struct {
	mu       sync.Mutex
	projects map[string]Project
	tasks    map[string]Task
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{projects: map[string]Project{}, tasks: map[string]Task{}}
}

func (r *MemoryRepo) InsertProject(ctx context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p.ID]; ok {
		return store.ErrConflict
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetProject(ctx context.Context, workspaceID, id string) (Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.WorkspaceID != workspaceID {
		return Project{}, store.ErrNotFound
	}
	return r.derive(p), nil
}

// derive must be called with mu held.
func (r *MemoryRepo) derive(p Project) Project {
	done, total := 0, 0
	for _, t := range r.tasks {
		if t.ProjectID != p.ID {
			continue
		}
		total++
		if t.Status == TaskDone {
			done++
		}
	}
	p.TaskCount = total
	p.Progress = progress(done, total)
	return p
}

func (r *MemoryRepo) ListProjects(ctx context.Context, f ListFilter) ([]Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	term := strings.ToLower(f.Search)
	out := make([]Project, 0)
	for _, p := range r.projects {
		if p.WorkspaceID != f.WorkspaceID {
			continue
		}
		if f.ClientID != "" && p.ClientID != f.ClientID {
			continue
		}
		if f.Status != "" && string(p.Status) != f.Status {
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(strings.ToLower(p.ClientName), term) {
			continue
		}
		out = append(out, r.derive(p))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return []Project{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) UpdateProject(ctx context.Context, p Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.projects[p.ID]
	if !ok || old.WorkspaceID != p.WorkspaceID {
		return store.ErrNotFound
	}
	r.projects[p.ID] = p
	return nil
}

func (r *MemoryRepo) DeleteProject(ctx context.Context, workspaceID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok || p.WorkspaceID != workspaceID {
		return store.ErrNotFound
	}
	delete(r.projects, id)
	for tid, t := range r.tasks {
		if t.ProjectID == id {
			delete(r.tasks, tid)
		}
	}
	return nil
}

func (r *MemoryRepo) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Stats{ByStatus: map[Status]int{}}
	sum := 0
	for _, p := range r.projects {
		if p.WorkspaceID != workspaceID {
			continue
		}
		p = r.derive(p)
		st.Total++
		st.ByStatus[p.Status]++
		st.BudgetMinor += p.BudgetMinor
		st.SpentMinor += p.SpentMinor
		sum += p.Progress
	}
	if st.Total > 0 {
		st.AverageProgress = sum / st.Total
	}
	return st, nil
}

func (r *MemoryRepo) InsertTask(ctx context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return store.ErrConflict
	}
	r.tasks[t.ID] = t
	return nil
}

func (r *MemoryRepo) GetTask(ctx context.Context, workspaceID, id string) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.WorkspaceID != workspaceID {
		return Task{}, store.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepo) ListTasks(ctx context.Context, workspaceID, projectID string) ([]Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Task, 0)
	for _, t := range r.tasks {
		if t.WorkspaceID == workspaceID && t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) UpdateTask(ctx context.Context, t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.tasks[t.ID]
	if !ok || old.WorkspaceID != t.WorkspaceID {
		return store.ErrNotFound
	}
	r.tasks[t.ID] = t
	return nil
}

func (r *MemoryRepo) SaveOrder(ctx context.Context, workspaceID string, tasks []Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		old, ok := r.tasks[t.ID]
		if !ok || old.WorkspaceID != workspaceID {
			return store.ErrNotFound
		}
	}
	for _, t := range tasks {
		old := r.tasks[t.ID]
		old.Status = t.Status
		old.Position = t.Position
		old.UpdatedAt = t.UpdatedAt
		r.tasks[t.ID] = old
	}
	return nil
}

func (r *MemoryRepo) DeleteTask(ctx context.Context, workspaceID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.WorkspaceID != workspaceID {
		return store.ErrNotFound
	}
	delete(r.tasks, id)
	return nil
}
