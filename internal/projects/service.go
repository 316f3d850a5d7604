// Package projects manages projects and their kanban tasks.
package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/rbac"
	"crm-platform/internal/store"
	"crm-platform/pkg/validate"

	"github.com/google/uuid"
)

// ClientLookup resolves the client a project belongs to.
type ClientLookup interface {
	Get(ctx context.Context, workspaceID, id string) (clients.Client, error)
}

// MemberLookup checks that an assignee belongs to the workspace.
type MemberLookup interface {
	IsMember(ctx context.Context, workspaceID, userID string) (rbac.Role, bool, error)
}

type Service struct {
	repo     Repository
	clients  ClientLookup
	members  MemberLookup
	activity *audit.Service
	clock    func() time.Time
}

// NewService returns the projects service. A nil repo yields ErrNotConfigured from every call.
// clients and members may be nil, which skips the corresponding reference checks.
func NewService(repo Repository, clients ClientLookup, members MemberLookup, activity *audit.Service) *Service {
	return &Service{repo: repo, clients: clients, members: members, activity: activity, clock: time.Now}
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Project, error) {
	if s.repo == nil {
		return nil, store.ErrNotConfigured
	}
	f.Search = strings.TrimSpace(f.Search)
	if err := validate.Struct(f); err != nil {
		return nil, err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	return s.repo.ListProjects(ctx, f)
}

func (s *Service) Get(ctx context.Context, workspaceID, id string) (Project, error) {
	if s.repo == nil {
		return Project{}, store.ErrNotConfigured
	}
	if workspaceID == "" || id == "" {
		return Project{}, store.ErrInvalidArgument
	}
	return s.repo.GetProject(ctx, workspaceID, id)
}

func (s *Service) Create(ctx context.Context, workspaceID string, req CreateRequest) (Project, error) {
	if s.repo == nil {
		return Project{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Project{}, store.ErrInvalidArgument
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return Project{}, err
	}
	if err := checkDates(req.StartDate, req.DueDate); err != nil {
		return Project{}, err
	}
	if req.Status == "" {
		req.Status = StatusPlanning
	}

	now := s.clock().UTC()
	p := Project{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		ClientID:    req.ClientID,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		BudgetMinor: req.BudgetMinor,
		StartDate:   req.StartDate,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.attachClient(ctx, &p); err != nil {
		return Project{}, err
	}
	if err := s.repo.InsertProject(ctx, p); err != nil {
		return Project{}, err
	}
	s.record(ctx, p, "created")
	return s.repo.GetProject(ctx, workspaceID, p.ID)
}

func (s *Service) Update(ctx context.Context, workspaceID, id string, req UpdateRequest) (Project, error) {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return Project{}, err
	}
	if err := validate.Struct(req); err != nil {
		return Project{}, err
	}
	if req.ClientID != nil {
		p.ClientID = strings.TrimSpace(*req.ClientID)
		p.ClientName = ""
		if err := s.attachClient(ctx, &p); err != nil {
			return Project{}, err
		}
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if req.BudgetMinor != nil {
		p.BudgetMinor = *req.BudgetMinor
	}
	if req.SpentMinor != nil {
		p.SpentMinor = *req.SpentMinor
	}
	if req.StartDate != nil {
		p.StartDate = req.StartDate
	}
	if req.DueDate != nil {
		p.DueDate = req.DueDate
	}
	if err := checkDates(p.StartDate, p.DueDate); err != nil {
		return Project{}, err
	}
	p.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateProject(ctx, p); err != nil {
		return Project{}, err
	}
	s.record(ctx, p, "updated")
	return s.repo.GetProject(ctx, workspaceID, id)
}

func (s *Service) Delete(ctx context.Context, workspaceID, id string) error {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProject(ctx, workspaceID, id); err != nil {
		return err
	}
	s.record(ctx, p, "deleted")
	return nil
}

func (s *Service) Stats(ctx context.Context, workspaceID string) (Stats, error) {
	if s.repo == nil {
		return Stats{}, store.ErrNotConfigured
	}
	if workspaceID == "" {
		return Stats{}, store.ErrInvalidArgument
	}
	return s.repo.Stats(ctx, workspaceID)
}

// Board returns the project's tasks grouped by status in column order, each column sorted by position.
func (s *Service) Board(ctx context.Context, workspaceID, projectID string) (Board, error) {
	if _, err := s.Get(ctx, workspaceID, projectID); err != nil {
		return Board{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, workspaceID, projectID)
	if err != nil {
		return Board{}, err
	}
	return buildBoard(projectID, tasks), nil
}

func (s *Service) CreateTask(ctx context.Context, workspaceID, projectID string, req TaskCreateRequest) (Task, error) {
	board, err := s.Board(ctx, workspaceID, projectID)
	if err != nil {
		return Task{}, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := validate.Struct(req); err != nil {
		return Task{}, err
	}
	if req.Status == "" {
		req.Status = TaskTodo
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if err := s.checkAssignee(ctx, workspaceID, req.AssigneeID); err != nil {
		return Task{}, err
	}

	now := s.clock().UTC()
	t := Task{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		Position:    len(board.column(req.Status)),
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertTask(ctx, t); err != nil {
		return Task{}, err
	}
	return s.repo.GetTask(ctx, workspaceID, t.ID)
}

func (s *Service) UpdateTask(ctx context.Context, workspaceID, id string, req TaskUpdateRequest) (Task, error) {
	if s.repo == nil {
		return Task{}, store.ErrNotConfigured
	}
	t, err := s.repo.GetTask(ctx, workspaceID, id)
	if err != nil {
		return Task{}, err
	}
	if err := validate.Struct(req); err != nil {
		return Task{}, err
	}
	if req.Title != nil {
		t.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.AssigneeID != nil {
		if err := s.checkAssignee(ctx, workspaceID, *req.AssigneeID); err != nil {
			return Task{}, err
		}
		t.AssigneeID = *req.AssigneeID
		t.AssigneeName = ""
	}
	if req.DueDate != nil {
		t.DueDate = req.DueDate
	}
	t.UpdatedAt = s.clock().UTC()
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return Task{}, err
	}
	return s.repo.GetTask(ctx, workspaceID, id)
}

// MoveTask places a task at position within the status column. Positions in the source and
// target columns are renumbered from zero; a position past the end appends.
func (s *Service) MoveTask(ctx context.Context, workspaceID, id string, req MoveRequest) (Board, error) {
	if s.repo == nil {
		return Board{}, store.ErrNotConfigured
	}
	if err := validate.Struct(req); err != nil {
		return Board{}, err
	}
	t, err := s.repo.GetTask(ctx, workspaceID, id)
	if err != nil {
		return Board{}, err
	}
	tasks, err := s.repo.ListTasks(ctx, workspaceID, t.ProjectID)
	if err != nil {
		return Board{}, err
	}

	board := buildBoard(t.ProjectID, tasks)
	from := t.Status
	source := removeTask(board.column(from), id)
	target := source
	if req.Status != from {
		target = board.column(req.Status)
	}
	pos := req.Position
	if pos > len(target) {
		pos = len(target)
	}
	t.Status = req.Status
	target = append(target[:pos], append([]Task{t}, target[pos:]...)...)

	now := s.clock().UTC()
	var changed []Task
	renumber := func(col []Task) {
		for i := range col {
			if col[i].Position != i || col[i].ID == id {
				col[i].Position = i
				col[i].UpdatedAt = now
				changed = append(changed, col[i])
			}
		}
	}
	renumber(target)
	if req.Status != from {
		renumber(source)
	}
	if err := s.repo.SaveOrder(ctx, workspaceID, changed); err != nil {
		return Board{}, err
	}

	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventTaskMoved,
		WorkspaceID: workspaceID,
		TargetType:  "task",
		TargetID:    id,
		Message:     t.Title,
		Metadata:    map[string]string{"from": string(from), "to": string(req.Status), "position": fmt.Sprint(pos)},
	})
	return s.Board(ctx, workspaceID, t.ProjectID)
}

func (s *Service) DeleteTask(ctx context.Context, workspaceID, id string) error {
	if s.repo == nil {
		return store.ErrNotConfigured
	}
	return s.repo.DeleteTask(ctx, workspaceID, id)
}

func (s *Service) attachClient(ctx context.Context, p *Project) error {
	if p.ClientID == "" || s.clients == nil {
		return nil
	}
	c, err := s.clients.Get(ctx, p.WorkspaceID, p.ClientID)
	if err != nil {
		return fmt.Errorf("%w: client: %v", store.ErrInvalidArgument, err)
	}
	p.ClientName = c.CompanyName
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, workspaceID, userID string) error {
	if userID == "" || s.members == nil {
		return nil
	}
	_, ok, err := s.members.IsMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: assignee is not a workspace member", store.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) record(ctx context.Context, p Project, action string) {
	s.activity.Record(ctx, audit.Event{
		Type:        audit.EventProjectChanged,
		WorkspaceID: p.WorkspaceID,
		TargetType:  "project",
		TargetID:    p.ID,
		Message:     p.Name,
		Metadata:    map[string]string{"action": action},
	})
}

func checkDates(start, due *time.Time) error {
	if start != nil && due != nil && due.Before(*start) {
		return fmt.Errorf("%w: due date before start date", store.ErrInvalidArgument)
	}
	return nil
}

func buildBoard(projectID string, tasks []Task) Board {
	b := Board{ProjectID: projectID, Columns: make([]Column, len(TaskStatuses))}
	idx := make(map[TaskStatus]int, len(TaskStatuses))
	for i, st := range TaskStatuses {
		b.Columns[i] = Column{Status: st, Tasks: []Task{}}
		idx[st] = i
	}
	for _, t := range tasks {
		i, ok := idx[t.Status]
		if !ok {
			continue
		}
		b.Columns[i].Tasks = append(b.Columns[i].Tasks, t)
	}
	return b
}

// column returns a copy of the tasks in status, in board order.
func (b Board) column(status TaskStatus) []Task {
	for _, c := range b.Columns {
		if c.Status == status {
			return append([]Task(nil), c.Tasks...)
		}
	}
	return nil
}

func removeTask(col []Task, id string) []Task {
	out := col[:0]
	for _, t := range col {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
