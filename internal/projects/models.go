package projects

import "time"

type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Project is the flattened view of a projects row: the client name is lifted from the
// joined client, progress and task count from its tasks.
type Project struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	ClientID    string     `json:"clientId,omitempty"`
	ClientName  string     `json:"clientName,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	BudgetMinor int64      `json:"budgetMinor"`
	SpentMinor  int64      `json:"spentMinor"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Progress    int        `json:"progress"`
	TaskCount   int        `json:"taskCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskDone       TaskStatus = "done"
)

// TaskStatuses is the board column order.
var TaskStatuses = []TaskStatus{TaskTodo, TaskInProgress, TaskReview, TaskDone}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Task struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspaceId"`
	ProjectID    string     `json:"projectId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	AssigneeID   string     `json:"assigneeId,omitempty"`
	AssigneeName string     `json:"assigneeName,omitempty"`
	Position     int        `json:"position"`
	DueDate      *time.Time `json:"dueDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Column struct {
	Status TaskStatus `json:"status"`
	Tasks  []Task     `json:"tasks"`
}

// Board is a project's tasks grouped into ordered columns.
type Board struct {
	ProjectID string   `json:"projectId"`
	Columns   []Column `json:"columns"`
}

type ListFilter struct {
	WorkspaceID string `validate:"required"`
	ClientID    string `validate:"omitempty,uuid"`
	Search      string `validate:"max=200"`
	Status      string `validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	Limit       int    `validate:"gte=0,lte=500"`
	Offset      int    `validate:"gte=0"`
}

type Stats struct {
	Total           int            `json:"total"`
	ByStatus        map[Status]int `json:"byStatus"`
	BudgetMinor     int64          `json:"budgetMinor"`
	SpentMinor      int64          `json:"spentMinor"`
	AverageProgress int            `json:"averageProgress"`
}

type CreateRequest struct {
	ClientID    string     `json:"clientId" validate:"omitempty,uuid"`
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Status      Status     `json:"status" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	BudgetMinor int64      `json:"budgetMinor" validate:"gte=0"`
	StartDate   *time.Time `json:"startDate"`
	DueDate     *time.Time `json:"dueDate"`
}

type UpdateRequest struct {
	ClientID    *string    `json:"clientId" validate:"omitempty"`
	Name        *string    `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Status      *Status    `json:"status" validate:"omitempty,oneof=planning active on_hold completed cancelled"`
	BudgetMinor *int64     `json:"budgetMinor" validate:"omitempty,gte=0"`
	SpentMinor  *int64     `json:"spentMinor" validate:"omitempty,gte=0"`
	StartDate   *time.Time `json:"startDate"`
	DueDate     *time.Time `json:"dueDate"`
}

type TaskCreateRequest struct {
	Title       string     `json:"title" validate:"required,max=300"`
	Description string     `json:"description" validate:"max=5000"`
	Status      TaskStatus `json:"status" validate:"omitempty,oneof=todo in_progress review done"`
	Priority    Priority   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID  string     `json:"assigneeId" validate:"omitempty,uuid"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskUpdateRequest edits task content; column and order change through MoveTask.
type TaskUpdateRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=300"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Priority    *Priority  `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	AssigneeID  *string    `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
}

type MoveRequest struct {
	Status   TaskStatus `json:"status" validate:"required,oneof=todo in_progress review done"`
	Position int        `json:"position" validate:"gte=0"`
}

// progress is the integer percentage of done tasks.
func progress(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
