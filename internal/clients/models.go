package clients

import "time"

type Status string

const (
	StatusLead     Status = "lead"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Client is the flattened view of a clients row plus its project and revenue aggregates.
type Client struct {
	ID                string    `json:"id"`
	WorkspaceID       string    `json:"workspaceId"`
	CompanyName       string    `json:"companyName"`
	ContactName       string    `json:"contactName"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	Website           string    `json:"website"`
	Status            Status    `json:"status"`
	Industry          string    `json:"industry"`
	Notes             string    `json:"notes"`
	ProjectCount      int       `json:"projectCount"`
	TotalRevenueMinor int64     `json:"totalRevenueMinor"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type ListFilter struct {
	WorkspaceID string `validate:"required"`
	Search      string `validate:"max=200"`
	Status      string `validate:"omitempty,oneof=lead active inactive"`
	Limit       int    `validate:"gte=0,lte=500"`
	Offset      int    `validate:"gte=0"`
}

type Stats struct {
	Total        int   `json:"total"`
	Active       int   `json:"active"`
	Leads        int   `json:"leads"`
	RevenueMinor int64 `json:"revenueMinor"`
}

type CreateRequest struct {
	CompanyName string `json:"companyName" validate:"required,max=200"`
	ContactName string `json:"contactName" validate:"max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=50"`
	Website     string `json:"website" validate:"max=300"`
	Status      Status `json:"status" validate:"omitempty,oneof=lead active inactive"`
	Industry    string `json:"industry" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=5000"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	CompanyName *string `json:"companyName" validate:"omitempty,min=1,max=200"`
	ContactName *string `json:"contactName" validate:"omitempty,max=200"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Phone       *string `json:"phone" validate:"omitempty,max=50"`
	Website     *string `json:"website" validate:"omitempty,max=300"`
	Status      *Status `json:"status" validate:"omitempty,oneof=lead active inactive"`
	Industry    *string `json:"industry" validate:"omitempty,max=100"`
	Notes       *string `json:"notes" validate:"omitempty,max=5000"`
}

func (u UpdateRequest) apply(c *Client) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&c.CompanyName, u.CompanyName)
	set(&c.ContactName, u.ContactName)
	set(&c.Email, u.Email)
	set(&c.Phone, u.Phone)
	set(&c.Website, u.Website)
	set(&c.Industry, u.Industry)
	set(&c.Notes, u.Notes)
	if u.Status != nil {
		c.Status = *u.Status
	}
}
