package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"scopeauth.org/internal/identity"
)

// Service validates input and delegates to the backing store. It holds no
// state of its own; every call is safe to run concurrently with any other.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("directory store is required")
	}
	return &Service{store: store}, nil
}

// Users -------------------------------------------------------------------

func (s *Service) CreateUser(ctx context.Context, username *string, email string, details json.RawMessage) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if username != nil {
		trimmed := strings.TrimSpace(*username)
		if trimmed == "" {
			username = nil
		} else {
			username = &trimmed
		}
	}
	u := &User{
		ID:       identity.NewUserID(),
		Username: username,
		Email:    email,
		Details:  details,
		Active:   true,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id identity.UserID) (*User, error) {
	return s.store.Users().Find(ctx, id)
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return s.store.Users().FindByUsername(ctx, username)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.Users().FindByEmail(ctx, email)
}

// SetUserDetails replaces the profile payload in full; there is no partial
// merge.
func (s *Service) SetUserDetails(ctx context.Context, id identity.UserID, details json.RawMessage) error {
	return s.store.Users().SetDetails(ctx, id, details)
}

// DeactivateUser flips active to false. Idempotent; it does not write an
// audit entry, callers that need a trail record one explicitly.
func (s *Service) DeactivateUser(ctx context.Context, id identity.UserID) error {
	return s.store.Users().Deactivate(ctx, id)
}

// DeleteUser hard-deletes the user. Memberships and role grants owned by the
// user are removed with it; audit entries lose their attribution but remain.
func (s *Service) DeleteUser(ctx context.Context, id identity.UserID) error {
	return s.store.Users().Delete(ctx, id)
}

// Groups ------------------------------------------------------------------

func (s *Service) CreateGroup(ctx context.Context, displayName string, details json.RawMessage) (*Group, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	g := &Group{
		ID:          identity.NewGroupID(),
		DisplayName: displayName,
		Details:     details,
		Active:      true,
	}
	if err := s.store.Groups().Create(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, id identity.GroupID) (*Group, error) {
	return s.store.Groups().Find(ctx, id)
}

func (s *Service) GetGroupByDisplayName(ctx context.Context, name string) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	return s.store.Groups().FindByDisplayName(ctx, name)
}

func (s *Service) SetGroupDetails(ctx context.Context, id identity.GroupID, details json.RawMessage) error {
	return s.store.Groups().SetDetails(ctx, id, details)
}

func (s *Service) DeactivateGroup(ctx context.Context, id identity.GroupID) error {
	return s.store.Groups().Deactivate(ctx, id)
}

func (s *Service) DeleteGroup(ctx context.Context, id identity.GroupID) error {
	return s.store.Groups().Delete(ctx, id)
}

// Memberships -------------------------------------------------------------

// AddMember links the user to the group with a role label. Changing the role
// requires removing the membership first; there is no upsert.
func (s *Service) AddMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (*Membership, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	m := &Membership{GroupID: groupID, UserID: userID, RoleName: roleName}
	if err := s.store.Memberships().AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) error {
	return s.store.Memberships().RemoveMember(ctx, groupID, userID)
}

func (s *Service) IsMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) (bool, error) {
	return s.store.Memberships().IsMember(ctx, groupID, userID)
}

func (s *Service) Members(ctx context.Context, groupID identity.GroupID, page *Page) ([]Membership, error) {
	if page != nil && (page.Limit <= 0 || page.Offset < 0) {
		return nil, fmt.Errorf("%w: page limit must be positive and offset non-negative", ErrInvalidInput)
	}
	return s.store.Memberships().Members(ctx, groupID, page)
}

func (s *Service) GroupsForUser(ctx context.Context, userID identity.UserID) ([]Group, error) {
	return s.store.Memberships().GroupsForUser(ctx, userID)
}

func (s *Service) MemberHasRole(ctx context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (bool, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.Memberships().HasRole(ctx, groupID, userID, roleName)
}

// Grants ------------------------------------------------------------------

// Allow grants the role to the principal within the scope instance. Granting
// an already-held tuple is a no-op.
func (s *Service) Allow(ctx context.Context, p Principal, scopeKind, scopeID, roleName string) error {
	g, err := buildGrant(p, scopeKind, scopeID, roleName)
	if err != nil {
		return err
	}
	return s.store.Grants().Allow(ctx, g)
}

// Revoke removes the grant. Revoking an absent tuple is a no-op.
func (s *Service) Revoke(ctx context.Context, p Principal, scopeKind, scopeID, roleName string) error {
	g, err := buildGrant(p, scopeKind, scopeID, roleName)
	if err != nil {
		return err
	}
	return s.store.Grants().Revoke(ctx, g)
}

func (s *Service) HasRole(ctx context.Context, p Principal, scopeKind, scopeID, roleName string) (bool, error) {
	if p == nil {
		return false, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	return s.store.Grants().HasRole(ctx, p, scopeKind, scopeID, roleName)
}

func (s *Service) Roles(ctx context.Context, p Principal) ([]Grant, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	return s.store.Grants().Roles(ctx, p)
}

func (s *Service) RolesInScope(ctx context.Context, p Principal, scopeKind, scopeID string) ([]string, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	return s.store.Grants().RolesInScope(ctx, p, scopeKind, scopeID)
}

// Global-scope wrappers. Pure delegation with the reserved pair substituted:
// a grant made here and a grant made by passing ("global", "global")
// explicitly are the same row.

func (s *Service) AllowGlobal(ctx context.Context, p Principal, roleName string) error {
	return s.Allow(ctx, p, GlobalScopeKind, GlobalScopeID, roleName)
}

func (s *Service) RevokeGlobal(ctx context.Context, p Principal, roleName string) error {
	return s.Revoke(ctx, p, GlobalScopeKind, GlobalScopeID, roleName)
}

func (s *Service) HasGlobalRole(ctx context.Context, p Principal, roleName string) (bool, error) {
	return s.HasRole(ctx, p, GlobalScopeKind, GlobalScopeID, roleName)
}

func (s *Service) GlobalRoles(ctx context.Context, p Principal) ([]string, error) {
	return s.RolesInScope(ctx, p, GlobalScopeKind, GlobalScopeID)
}

// Audit -------------------------------------------------------------------

func (s *Service) AuditEventsFor(ctx context.Context, userID identity.UserID, page *Page) ([]AuditEntry, error) {
	if page != nil && (page.Limit <= 0 || page.Offset < 0) {
		return nil, fmt.Errorf("%w: page limit must be positive and offset non-negative", ErrInvalidInput)
	}
	return s.store.Audit().EventsFor(ctx, userID, page)
}

// AuditSink exposes the append-only sink for callers that record actions
// explicitly.
func (s *Service) AuditSink() AuditStore {
	return s.store.Audit()
}

func buildGrant(p Principal, scopeKind, scopeID, roleName string) (Grant, error) {
	if p == nil {
		return Grant{}, fmt.Errorf("%w: principal is required", ErrInvalidInput)
	}
	scopeKind = strings.TrimSpace(scopeKind)
	scopeID = strings.TrimSpace(scopeID)
	roleName = strings.TrimSpace(roleName)
	if scopeKind == "" || scopeID == "" {
		return Grant{}, fmt.Errorf("%w: scope kind and scope id are required", ErrInvalidInput)
	}
	if roleName == "" {
		return Grant{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return Grant{
		PrincipalID: p.PrincipalID(),
		ScopeKind:   scopeKind,
		ScopeID:     scopeID,
		RoleName:    roleName,
	}, nil
}
