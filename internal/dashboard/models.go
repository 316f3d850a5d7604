package dashboard

import (
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/clients"
	"crm-platform/internal/invoices"
	"crm-platform/internal/projects"
	"crm-platform/internal/users"
)

// Summary backs the statistics cards of the dashboard page.
type Summary struct {
	WorkspaceID string `json:"workspaceId"`

	Users    users.Stats    `json:"users"`
	Clients  clients.Stats  `json:"clients"`
	Projects projects.Stats `json:"projects"`
	Invoices invoices.Stats `json:"invoices"`

	// ClientConversionRate is active clients over all clients.
	ClientConversionRate float64 `json:"clientConversionRate"`
	// CollectionRate is paid over paid plus outstanding invoice amounts.
	CollectionRate float64 `json:"collectionRate"`

	RecentActivity []audit.Event `json:"recentActivity"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}
