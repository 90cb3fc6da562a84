package directory

import (
	"context"
	"encoding/json"

	"scopeauth.org/internal/identity"
)

// Store aggregates the persistence surfaces of the directory. Implementations
// back every method with a single atomic statement unless a cross-table
// cascade requires a transaction; cancellation is inherited from ctx.
type Store interface {
	Users() UserStore
	Groups() GroupStore
	Memberships() MembershipStore
	Grants() GrantStore
	Audit() AuditStore
}

// UserStore manages user records. Lookups return (nil, nil) when the record
// is absent; absence is not an error.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id identity.UserID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	SetDetails(ctx context.Context, id identity.UserID, details json.RawMessage) error
	Deactivate(ctx context.Context, id identity.UserID) error
	Delete(ctx context.Context, id identity.UserID) error
}

// GroupStore manages group records, keyed by display name instead of
// username/email. Same lookup and delete semantics as UserStore.
type GroupStore interface {
	Create(ctx context.Context, g *Group) error
	Find(ctx context.Context, id identity.GroupID) (*Group, error)
	FindByDisplayName(ctx context.Context, name string) (*Group, error)
	SetDetails(ctx context.Context, id identity.GroupID, details json.RawMessage) error
	Deactivate(ctx context.Context, id identity.GroupID) error
	Delete(ctx context.Context, id identity.GroupID) error
}

// MembershipStore manages the user/group relation.
type MembershipStore interface {
	// AddMember returns ErrConflict when the (group, user) pair already
	// has a membership row.
	AddMember(ctx context.Context, m *Membership) error
	// RemoveMember is idempotent; removing an absent pair succeeds.
	RemoveMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) error
	IsMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) (bool, error)
	// Members lists memberships in insertion order, windowed when page is
	// non-nil.
	Members(ctx context.Context, groupID identity.GroupID, page *Page) ([]Membership, error)
	// GroupsForUser returns the active groups the user belongs to.
	GroupsForUser(ctx context.Context, userID identity.UserID) ([]Group, error)
	HasRole(ctx context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (bool, error)
}

// GrantStore is the scoped role-grant engine. Allow and Revoke are
// idempotent: duplicate grants and absent revocations are successful no-ops,
// including under concurrent calls for the same tuple.
type GrantStore interface {
	Allow(ctx context.Context, g Grant) error
	Revoke(ctx context.Context, g Grant) error
	HasRole(ctx context.Context, p Principal, scopeKind, scopeID, roleName string) (bool, error)
	// Roles returns every grant for the principal ordered by
	// (scope_kind, scope_id, role_name) ascending. The ordering is part of
	// the contract; consumers diff against it.
	Roles(ctx context.Context, p Principal) ([]Grant, error)
	// RolesInScope returns role names within one scope instance, ordered
	// ascending.
	RolesInScope(ctx context.Context, p Principal, scopeKind, scopeID string) ([]string, error)
}

// AuditStore appends immutable entries. Entries are never mutated; a user
// hard-delete nulls the attribution and retains the entry.
type AuditStore interface {
	// Append fills in ID and OccurredAt when unset.
	Append(ctx context.Context, e *AuditEntry) error
	// EventsFor lists entries attributed to the user, newest first.
	EventsFor(ctx context.Context, userID identity.UserID, page *Page) ([]AuditEntry, error)
}
