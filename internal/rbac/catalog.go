package rbac

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Permission names referenced from code. The catalog file is the source of truth for the full set.
const (
	PermDashboardView      = "dashboard.view"
	PermDashboardAnalytics = "dashboard.analytics"
	PermBoardsView         = "boards.view"
	PermBoardsCreate       = "boards.create"
	PermBoardsEdit         = "boards.edit"
	PermBoardsDelete       = "boards.delete"
	PermAppsView           = "apps.view"
	PermAppsAIExtraction   = "apps.ai_extraction"
	PermAppsEmail          = "apps.email"
	PermClientsView        = "clients.view"
	PermClientsCreate      = "clients.create"
	PermClientsEdit        = "clients.edit"
	PermClientsDelete      = "clients.delete"
	PermClientsInvoices    = "clients.invoices"
	PermAdminUsers         = "admin.users"
	PermAdminPermissions   = "admin.permissions"
	PermAdminInvitations   = "admin.invitations"
	PermAdminEmailSetup    = "admin.email_setup"
	PermAdminActivity      = "admin.activity"
	PermAdminWorkspaces    = "admin.workspaces"
	PermAdminSuper         = "admin.super"
)

type Category string

const (
	CategoryDashboard Category = "dashboard"
	CategoryBoards    Category = "boards"
	CategoryApps      Category = "apps"
	CategoryAdmin     Category = "admin"
	CategoryClients   Category = "clients"
)

type Permission struct {
	Name           string   `yaml:"name" json:"name"`
	Category       Category `yaml:"category" json:"category"`
	Description    string   `yaml:"description" json:"description"`
	SuperAdminOnly bool     `yaml:"super_admin_only" json:"superAdminOnly"`
}

// Catalog is the immutable permission reference set.
type Catalog struct {
	perms  []Permission
	byName map[string]Permission
}

//go:embed permissions.yaml
var defaultCatalogYAML []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// DefaultCatalog returns the embedded catalog. A malformed embedded file is a build defect and panics.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		c, err := ParseCatalog(defaultCatalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Permissions []Permission `yaml:"permissions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("rbac: parse catalog: %w", err)
	}
	c := &Catalog{byName: make(map[string]Permission, len(doc.Permissions))}
	for _, p := range doc.Permissions {
		if p.Name == "" {
			return nil, fmt.Errorf("rbac: catalog entry without name")
		}
		switch p.Category {
		case CategoryDashboard, CategoryBoards, CategoryApps, CategoryAdmin, CategoryClients:
		default:
			return nil, fmt.Errorf("rbac: permission %q has unknown category %q", p.Name, p.Category)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("rbac: duplicate permission %q", p.Name)
		}
		c.byName[p.Name] = p
		c.perms = append(c.perms, p)
	}
	sort.Slice(c.perms, func(i, j int) bool { return c.perms[i].Name < c.perms[j].Name })
	return c, nil
}

func (c *Catalog) Lookup(name string) (Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

func (c *Catalog) Known(name string) bool {
	_, ok := c.byName[name]
	return ok
}

func (c *Catalog) SuperAdminOnly(name string) bool {
	return c.byName[name].SuperAdminOnly
}

// All returns the permissions sorted by name.
func (c *Catalog) All() []Permission {
	out := make([]Permission, len(c.perms))
	copy(out, c.perms)
	return out
}

func (c *Catalog) ByCategory() map[Category][]Permission {
	out := make(map[Category][]Permission)
	for _, p := range c.perms {
		out[p.Category] = append(out[p.Category], p)
	}
	return out
}
