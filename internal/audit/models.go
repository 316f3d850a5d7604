package audit

import "time"

// Event is an immutable, append-only activity log record.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; do not block critical flows on audit failures.
// - WorkspaceID is empty only for platform-level events (bootstrap, sign-in without membership).
type Event struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	Type        EventType `json:"type"`

	ActorUserID string `json:"actorUserId,omitempty"`
	ActorRole   string `json:"actorRole,omitempty"`
	IPAddress   string `json:"ipAddress,omitempty"`

	// TargetType/TargetID identify the affected row, e.g. ("user", id).
	TargetType string `json:"targetType,omitempty"`
	TargetID   string `json:"targetId,omitempty"`

	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type EventType string

const (
	EventSignIn             EventType = "auth.sign_in"
	EventSignInFailed       EventType = "auth.sign_in_failed"
	EventSignOut            EventType = "auth.sign_out"
	EventAccountLocked      EventType = "auth.account_locked"
	EventBootstrap          EventType = "auth.bootstrap"
	EventPasswordChanged    EventType = "auth.password_changed"
	EventRoleChanged        EventType = "user.role_changed"
	EventActivationChanged  EventType = "user.activation_changed"
	EventUnlocked           EventType = "user.unlocked"
	EventPermissionGranted  EventType = "user.permission_granted"
	EventPermissionRevoked  EventType = "user.permission_revoked"
	EventInvitationCreated  EventType = "invitation.created"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventWorkspaceCreated   EventType = "workspace.created"
	EventMemberAdded        EventType = "workspace.member_added"
	EventMemberRemoved      EventType = "workspace.member_removed"
	EventClientChanged      EventType = "client.changed"
	EventProjectChanged     EventType = "project.changed"
	EventTaskMoved          EventType = "task.moved"
	EventInvoiceChanged     EventType = "invoice.changed"
	EventInvoicePaid        EventType = "invoice.paid"
	EventEmailSent          EventType = "email.sent"
	EventExtractionRun      EventType = "extraction.run"
)
