// Package extraction guesses client fields from pasted free text.
package extraction

import (
	"context"
	"time"
)

// Field names produced by the extractors.
const (
	FieldCompany = "companyName"
	FieldContact = "contactName"
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldWebsite = "website"
	FieldCost    = "cost"
)

// Field is one guessed value. Source names the extractor branch that produced it.
type Field struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) ([]Field, error)
}

type Status string

const (
	StatusCompleted Status = "completed"
	StatusApplied   Status = "applied"
)

type Extraction struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	InputText   string    `json:"inputText"`
	Fields      []Field   `json:"fields"`
	Extractor   string    `json:"extractor"`
	Status      Status    `json:"status"`
	ClientID    string    `json:"clientId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type RunRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// ApplyRequest overrides extracted values by field name before the client is created.
type ApplyRequest struct {
	Overrides map[string]string `json:"overrides"`
}

// Value returns the highest-confidence value for name.
func (e Extraction) Value(name string) string {
	var best Field
	for _, f := range e.Fields {
		if f.Name == name && f.Confidence > best.Confidence {
			best = f
		}
	}
	return best.Value
}
