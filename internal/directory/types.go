package directory

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"scopeauth.org/internal/identity"
)

// Reserved scope pair used for global authorization. Global roles are ordinary
// grants carrying this pair; there is no separate table or code path.
const (
	GlobalScopeKind = "global"
	GlobalScopeID   = "global"
)

// User is a principal provisioned by an identity provider.
type User struct {
	ID        identity.UserID `json:"id"`
	Username  *string         `json:"username,omitempty"`
	Email     string          `json:"email"`
	Details   json.RawMessage `json:"details,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Group is a named collection of users that can itself hold role grants.
type Group struct {
	ID          identity.GroupID `json:"id"`
	DisplayName string           `json:"display_name"`
	Details     json.RawMessage  `json:"details,omitempty"`
	Active      bool             `json:"active"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Membership links a user to a group. The pair is unique and carries exactly
// one role label scoped to that group.
type Membership struct {
	GroupID   identity.GroupID `json:"group_id"`
	UserID    identity.UserID  `json:"user_id"`
	RoleName  string           `json:"role_name"`
	CreatedAt time.Time        `json:"created_at"`
}

// Grant is a single authorization fact: the principal holds RoleName within
// the (ScopeKind, ScopeID) scope instance.
type Grant struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	ScopeKind   string    `json:"scope_kind"`
	ScopeID     string    `json:"scope_id"`
	RoleName    string    `json:"role_name"`
}

// AuditEntry is an append-only record of a principal-attributed action.
// UserID is nil once the acting user has been hard-deleted.
type AuditEntry struct {
	ID         uuid.UUID        `json:"id"`
	UserID     *identity.UserID `json:"user_id,omitempty"`
	Action     json.RawMessage  `json:"action"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Principal identifies a holder of role grants: either a user or a group.
type Principal interface {
	PrincipalID() uuid.UUID
}

// Page is an optional (limit, offset) window for list operations.
type Page struct {
	Limit  int64
	Offset int64
}
