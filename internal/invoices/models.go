package invoices

import "time"

type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusVoid    Status = "void"
)

// Invoice amounts are in minor units. Overdue is never stored: a sent invoice past its
// due date is reported as overdue on read.
type Invoice struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	ClientID    string     `json:"clientId"`
	ProjectID   string     `json:"projectId,omitempty"`
	Number      string     `json:"number"`
	AmountMinor int64      `json:"amountMinor"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	PaymentRef  string     `json:"paymentRef,omitempty"`
	IssuedAt    time.Time  `json:"issuedAt"`
	DueAt       time.Time  `json:"dueAt"`
	PaidAt      *time.Time `json:"paidAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (i Invoice) view(now time.Time) Invoice {
	if i.Status == StatusSent && now.After(i.DueAt) {
		i.Status = StatusOverdue
	}
	return i
}

type ListFilter struct {
	WorkspaceID string `validate:"required"`
	ClientID    string `validate:"omitempty,uuid"`
	Status      string `validate:"omitempty,oneof=draft sent paid overdue void"`
	Limit       int    `validate:"gte=0,lte=500"`
	Offset      int    `validate:"gte=0"`
}

type Stats struct {
	Total            int   `json:"total"`
	Drafts           int   `json:"drafts"`
	Overdue          int   `json:"overdue"`
	PaidMinor        int64 `json:"paidMinor"`
	OutstandingMinor int64 `json:"outstandingMinor"`
}

type CreateRequest struct {
	ClientID    string     `json:"clientId" validate:"required,uuid"`
	ProjectID   string     `json:"projectId" validate:"omitempty,uuid"`
	Number      string     `json:"number" validate:"max=50"`
	AmountMinor int64      `json:"amountMinor" validate:"gt=0"`
	Currency    string     `json:"currency" validate:"required,len=3,alpha"`
	Send        bool       `json:"send"`
	IssuedAt    *time.Time `json:"issuedAt"`
	DueInDays   int        `json:"dueInDays" validate:"gte=0,lte=365"`
}

type MarkPaidRequest struct {
	PaymentRef string     `json:"paymentRef" validate:"max=200"`
	PaidAt     *time.Time `json:"paidAt"`
}
