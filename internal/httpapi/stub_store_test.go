package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

// stubStore is a minimal in-memory directory.Store for handler tests.
type stubStore struct {
	mu          sync.Mutex
	users       map[identity.UserID]*directory.User
	groups      map[identity.GroupID]*directory.Group
	memberships []directory.Membership
	grants      map[directory.Grant]struct{}
	audit       []directory.AuditEntry
}

func newStubStore() *stubStore {
	return &stubStore{
		users:  make(map[identity.UserID]*directory.User),
		groups: make(map[identity.GroupID]*directory.Group),
		grants: make(map[directory.Grant]struct{}),
	}
}

func (s *stubStore) Users() directory.UserStore             { return stubUsers{s} }
func (s *stubStore) Groups() directory.GroupStore           { return stubGroups{s} }
func (s *stubStore) Memberships() directory.MembershipStore { return stubMemberships{s} }
func (s *stubStore) Grants() directory.GrantStore           { return stubGrants{s} }
func (s *stubStore) Audit() directory.AuditStore            { return stubAudit{s} }

type stubUsers struct{ s *stubStore }

func (t stubUsers) Create(_ context.Context, u *directory.User) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.users {
		if existing.Email == u.Email {
			return fmt.Errorf("%w: email taken", directory.ErrConflict)
		}
		if u.Username != nil && existing.Username != nil && *existing.Username == *u.Username {
			return fmt.Errorf("%w: username taken", directory.ErrConflict)
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	copied := *u
	t.s.users[u.ID] = &copied
	return nil
}

func (t stubUsers) Find(_ context.Context, id identity.UserID) (*directory.User, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	u, ok := t.s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (t stubUsers) FindByUsername(_ context.Context, username string) (*directory.User, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, u := range t.s.users {
		if u.Username != nil && *u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (t stubUsers) FindByEmail(_ context.Context, email string) (*directory.User, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, u := range t.s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (t stubUsers) SetDetails(_ context.Context, id identity.UserID, details json.RawMessage) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if u, ok := t.s.users[id]; ok {
		u.Details = details
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (t stubUsers) Deactivate(_ context.Context, id identity.UserID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if u, ok := t.s.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (t stubUsers) Delete(_ context.Context, id identity.UserID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	delete(t.s.users, id)
	t.s.dropPrincipalLocked(id.PrincipalID())
	kept := t.s.memberships[:0]
	for _, m := range t.s.memberships {
		if m.UserID != id {
			kept = append(kept, m)
		}
	}
	t.s.memberships = kept
	return nil
}

type stubGroups struct{ s *stubStore }

func (t stubGroups) Create(_ context.Context, g *directory.Group) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.groups {
		if existing.DisplayName == g.DisplayName {
			return fmt.Errorf("%w: display name taken", directory.ErrConflict)
		}
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	copied := *g
	t.s.groups[g.ID] = &copied
	return nil
}

func (t stubGroups) Find(_ context.Context, id identity.GroupID) (*directory.Group, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	g, ok := t.s.groups[id]
	if !ok {
		return nil, nil
	}
	copied := *g
	return &copied, nil
}

func (t stubGroups) FindByDisplayName(_ context.Context, name string) (*directory.Group, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, g := range t.s.groups {
		if g.DisplayName == name {
			copied := *g
			return &copied, nil
		}
	}
	return nil, nil
}

func (t stubGroups) SetDetails(_ context.Context, id identity.GroupID, details json.RawMessage) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if g, ok := t.s.groups[id]; ok {
		g.Details = details
	}
	return nil
}

func (t stubGroups) Deactivate(_ context.Context, id identity.GroupID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if g, ok := t.s.groups[id]; ok {
		g.Active = false
	}
	return nil
}

func (t stubGroups) Delete(_ context.Context, id identity.GroupID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	delete(t.s.groups, id)
	t.s.dropPrincipalLocked(id.PrincipalID())
	kept := t.s.memberships[:0]
	for _, m := range t.s.memberships {
		if m.GroupID != id {
			kept = append(kept, m)
		}
	}
	t.s.memberships = kept
	return nil
}

func (s *stubStore) dropPrincipalLocked(pid uuid.UUID) {
	for g := range s.grants {
		if g.PrincipalID == pid {
			delete(s.grants, g)
		}
	}
}

type stubMemberships struct{ s *stubStore }

func (t stubMemberships) AddMember(_ context.Context, m *directory.Membership) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.memberships {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return fmt.Errorf("%w: already a member", directory.ErrConflict)
		}
	}
	if _, ok := t.s.groups[m.GroupID]; !ok {
		return fmt.Errorf("%w: unknown group", directory.ErrInvalidInput)
	}
	if _, ok := t.s.users[m.UserID]; !ok {
		return fmt.Errorf("%w: unknown user", directory.ErrInvalidInput)
	}
	m.CreatedAt = time.Now().UTC()
	t.s.memberships = append(t.s.memberships, *m)
	return nil
}

func (t stubMemberships) RemoveMember(_ context.Context, groupID identity.GroupID, userID identity.UserID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	kept := t.s.memberships[:0]
	for _, m := range t.s.memberships {
		if m.GroupID == groupID && m.UserID == userID {
			continue
		}
		kept = append(kept, m)
	}
	t.s.memberships = kept
	return nil
}

func (t stubMemberships) IsMember(_ context.Context, groupID identity.GroupID, userID identity.UserID) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, m := range t.s.memberships {
		if m.GroupID == groupID && m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (t stubMemberships) Members(_ context.Context, groupID identity.GroupID, page *directory.Page) ([]directory.Membership, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []directory.Membership
	for _, m := range t.s.memberships {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	if page != nil {
		if page.Offset >= int64(len(out)) {
			return nil, nil
		}
		out = out[page.Offset:]
		if int64(len(out)) > page.Limit {
			out = out[:page.Limit]
		}
	}
	return out, nil
}

func (t stubMemberships) GroupsForUser(_ context.Context, userID identity.UserID) ([]directory.Group, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []directory.Group
	for _, m := range t.s.memberships {
		if m.UserID != userID {
			continue
		}
		if g, ok := t.s.groups[m.GroupID]; ok && g.Active {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (t stubMemberships) HasRole(_ context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, m := range t.s.memberships {
		if m.GroupID == groupID && m.UserID == userID && m.RoleName == roleName {
			return true, nil
		}
	}
	return false, nil
}

type stubGrants struct{ s *stubStore }

func (t stubGrants) Allow(_ context.Context, g directory.Grant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.grants[g] = struct{}{}
	return nil
}

func (t stubGrants) Revoke(_ context.Context, g directory.Grant) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	delete(t.s.grants, g)
	return nil
}

func (t stubGrants) HasRole(_ context.Context, p directory.Principal, scopeKind, scopeID, roleName string) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.grants[directory.Grant{
		PrincipalID: p.PrincipalID(),
		ScopeKind:   scopeKind,
		ScopeID:     scopeID,
		RoleName:    roleName,
	}]
	return ok, nil
}

func (t stubGrants) Roles(_ context.Context, p directory.Principal) ([]directory.Grant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []directory.Grant
	for g := range t.s.grants {
		if g.PrincipalID == p.PrincipalID() {
			out = append(out, g)
		}
	}
	return out, nil
}

func (t stubGrants) RolesInScope(_ context.Context, p directory.Principal, scopeKind, scopeID string) ([]string, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []string
	for g := range t.s.grants {
		if g.PrincipalID == p.PrincipalID() && g.ScopeKind == scopeKind && g.ScopeID == scopeID {
			out = append(out, g.RoleName)
		}
	}
	return out, nil
}

type stubAudit struct{ s *stubStore }

func (t stubAudit) Append(_ context.Context, e *directory.AuditEntry) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	t.s.audit = append(t.s.audit, *e)
	return nil
}

func (t stubAudit) EventsFor(_ context.Context, userID identity.UserID, _ *directory.Page) ([]directory.AuditEntry, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	var out []directory.AuditEntry
	for i := len(t.s.audit) - 1; i >= 0; i-- {
		e := t.s.audit[i]
		if e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}
