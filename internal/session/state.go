// Package session owns "who is signed in, with what role, in which workspace".
// One Controller per client; state is only read through immutable snapshots.
package session

import (
	"errors"
	"time"

	"crm-platform/internal/identity"
	"crm-platform/internal/rbac"
	"crm-platform/internal/users"
)

var (
	ErrTimeout   = errors.New("the identity service did not respond in time, please try again")
	ErrNotMember = errors.New("not a member of this workspace")
)

type Status string

const (
	StatusLoading         Status = "loading"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

// transitions lists the allowed moves; a status may always be rewritten in place.
var transitions = map[Status][]Status{
	StatusLoading:         {StatusAuthenticated, StatusUnauthenticated, StatusError},
	StatusAuthenticated:   {StatusUnauthenticated},
	StatusUnauthenticated: {StatusLoading},
	StatusError:           {StatusLoading, StatusUnauthenticated},
}

func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Snapshot is an immutable copy of the session state.
type Snapshot struct {
	Status      Status             `json:"status"`
	User        *users.UserProfile `json:"user"`
	Role        rbac.Role          `json:"role,omitempty"`
	Permissions []string           `json:"permissions,omitempty"`
	Error       string             `json:"error,omitempty"`
	WorkspaceID string             `json:"workspaceId,omitempty"`
	Degraded    bool               `json:"degraded,omitempty"`
	Session     *identity.Session  `json:"-"`
}

func (s Snapshot) Loading() bool { return s.Status == StatusLoading }

func (s Snapshot) Authenticated() bool { return s.Status == StatusAuthenticated && s.User != nil }

// Locked reports whether the signed-in account is locked at now.
func (s Snapshot) Locked(now time.Time) bool {
	return s.User != nil && s.User.IsLocked(now)
}

func (s Snapshot) clone() Snapshot {
	out := s
	if s.User != nil {
		u := *s.User
		u.Permissions = append([]string(nil), s.User.Permissions...)
		u.Memberships = append(u.Memberships[:0:0], s.User.Memberships...)
		out.User = &u
	}
	if s.Session != nil {
		sess := *s.Session
		out.Session = &sess
	}
	out.Permissions = append([]string(nil), s.Permissions...)
	return out
}
