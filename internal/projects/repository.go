package projects

import "context"

// Repository is scoped by workspace on every call.
type Repository interface {
	InsertProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, workspaceID, id string) (Project, error)
	ListProjects(ctx context.Context, f ListFilter) ([]Project, error)
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, workspaceID, id string) error
	Stats(ctx context.Context, workspaceID string) (Stats, error)

	InsertTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, workspaceID, id string) (Task, error)
	ListTasks(ctx context.Context, workspaceID, projectID string) ([]Task, error)
	UpdateTask(ctx context.Context, t Task) error
	// SaveOrder writes status and position of every task in one unit of work.
	SaveOrder(ctx context.Context, workspaceID string, tasks []Task) error
	DeleteTask(ctx context.Context, workspaceID, id string) error
}
