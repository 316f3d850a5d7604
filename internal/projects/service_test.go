package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"crm-platform/internal/clients"
	"crm-platform/internal/store"
)

type fixture struct {
	svc     *Service
	clients *clients.Service
	ctx     context.Context
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cs := clients.NewService(clients.NewMemoryRepo(), nil)
	s := NewService(NewMemoryRepo(), cs, nil, nil)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	s.clock = func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Second)
	}
	return fixture{svc: s, clients: cs, ctx: context.Background()}
}

func (f fixture) project(t *testing.T) Project {
	t.Helper()
	p, err := f.svc.Create(f.ctx, "w1", CreateRequest{Name: "Website"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (f fixture) task(t *testing.T, projectID, title string, status TaskStatus) Task {
	t.Helper()
	task, err := f.svc.CreateTask(f.ctx, "w1", projectID, TaskCreateRequest{Title: title, Status: status})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func titles(col Column) []string {
	out := make([]string, 0, len(col.Tasks))
	for _, t := range col.Tasks {
		out = append(out, t.Title)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreate_FlattensClientName(t *testing.T) {
	f := newFixture(t)
	c, _ := f.clients.Create(f.ctx, "w1", clients.CreateRequest{CompanyName: "Acme"})
	p, err := f.svc.Create(f.ctx, "w1", CreateRequest{Name: "Portal", ClientID: c.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ClientName != "Acme" || p.Status != StatusPlanning {
		t.Fatalf("unexpected project %+v", p)
	}

	other, _ := f.clients.Create(f.ctx, "w2", clients.CreateRequest{CompanyName: "Elsewhere"})
	if _, err := f.svc.Create(f.ctx, "w1", CreateRequest{Name: "X", ClientID: other.ID}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("client from another workspace must be rejected, got %v", err)
	}
}

func TestCreate_RejectsDueBeforeStart(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	due := start.Add(-24 * time.Hour)
	if _, err := f.svc.Create(f.ctx, "w1", CreateRequest{Name: "X", StartDate: &start, DueDate: &due}); !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestBoard_GroupsByStatusInOrder(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	f.task(t, p.ID, "a", TaskTodo)
	f.task(t, p.ID, "b", TaskTodo)
	f.task(t, p.ID, "c", TaskDone)

	b, err := f.svc.Board(f.ctx, "w1", p.ID)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(b.Columns) != 4 || b.Columns[0].Status != TaskTodo || b.Columns[3].Status != TaskDone {
		t.Fatalf("unexpected columns %+v", b.Columns)
	}
	if !equal(titles(b.Columns[0]), []string{"a", "b"}) || !equal(titles(b.Columns[3]), []string{"c"}) {
		t.Fatalf("unexpected board %+v", b)
	}
	if b.Columns[1].Tasks == nil {
		t.Fatalf("empty columns must be empty slices")
	}
}

func TestMoveTask_AcrossColumns(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	a := f.task(t, p.ID, "a", TaskTodo)
	f.task(t, p.ID, "b", TaskTodo)
	f.task(t, p.ID, "c", TaskInProgress)

	b, err := f.svc.MoveTask(f.ctx, "w1", a.ID, MoveRequest{Status: TaskInProgress, Position: 0})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !equal(titles(b.Columns[0]), []string{"b"}) || !equal(titles(b.Columns[1]), []string{"a", "c"}) {
		t.Fatalf("unexpected board %+v", b)
	}
	for _, col := range b.Columns {
		for i, task := range col.Tasks {
			if task.Position != i {
				t.Fatalf("column %s not renumbered: %+v", col.Status, col.Tasks)
			}
		}
	}
}

func TestMoveTask_WithinColumnAndClamp(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	a := f.task(t, p.ID, "a", TaskTodo)
	f.task(t, p.ID, "b", TaskTodo)
	f.task(t, p.ID, "c", TaskTodo)

	b, err := f.svc.MoveTask(f.ctx, "w1", a.ID, MoveRequest{Status: TaskTodo, Position: 99})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !equal(titles(b.Columns[0]), []string{"b", "c", "a"}) {
		t.Fatalf("unexpected order %v", titles(b.Columns[0]))
	}
}

func TestProgressAndStats(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	a := f.task(t, p.ID, "a", TaskTodo)
	f.task(t, p.ID, "b", TaskTodo)
	f.task(t, p.ID, "c", TaskDone)
	f.task(t, p.ID, "d", TaskDone)
	_, _ = f.svc.MoveTask(f.ctx, "w1", a.ID, MoveRequest{Status: TaskDone})

	got, _ := f.svc.Get(f.ctx, "w1", p.ID)
	if got.TaskCount != 4 || got.Progress != 75 {
		t.Fatalf("expected 3/4 done, got %+v", got)
	}

	_, _ = f.svc.Create(f.ctx, "w1", CreateRequest{Name: "Empty", Status: StatusActive, BudgetMinor: 500})
	st, err := f.svc.Stats(f.ctx, "w1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Total != 2 || st.ByStatus[StatusPlanning] != 1 || st.ByStatus[StatusActive] != 1 || st.BudgetMinor != 500 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.AverageProgress != 37 {
		t.Fatalf("expected average progress 37, got %d", st.AverageProgress)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	p := f.project(t)
	task := f.task(t, p.ID, "a", TaskTodo)

	title := "renamed"
	pr := PriorityUrgent
	got, err := f.svc.UpdateTask(f.ctx, "w1", task.ID, TaskUpdateRequest{Title: &title, Priority: &pr})
	if err != nil || got.Title != "renamed" || got.Priority != PriorityUrgent || got.Status != TaskTodo {
		t.Fatalf("unexpected task %+v err=%v", got, err)
	}

	spent := int64(120)
	up, err := f.svc.Update(f.ctx, "w1", p.ID, UpdateRequest{SpentMinor: &spent})
	if err != nil || up.SpentMinor != 120 || up.Name != "Website" {
		t.Fatalf("unexpected project %+v err=%v", up, err)
	}

	if err := f.svc.Delete(f.ctx, "w1", p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.UpdateTask(f.ctx, "w1", task.ID, TaskUpdateRequest{Title: &title}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("tasks must go with their project, got %v", err)
	}
}

func TestNotConfigured(t *testing.T) {
	s := NewService(nil, nil, nil, nil)
	if _, err := s.Board(context.Background(), "w1", "p1"); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
