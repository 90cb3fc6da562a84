package directory_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

// memStore is an in-memory Store with the same uniqueness, idempotency and
// cascade semantics as the Postgres implementation.
type memStore struct {
	mu          sync.Mutex
	users       map[identity.UserID]*directory.User
	groups      map[identity.GroupID]*directory.Group
	memberships []directory.Membership
	grants      map[directory.Grant]struct{}
	audit       []directory.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[identity.UserID]*directory.User),
		groups: make(map[identity.GroupID]*directory.Group),
		grants: make(map[directory.Grant]struct{}),
	}
}

func (s *memStore) Users() directory.UserStore             { return &memUsers{s} }
func (s *memStore) Groups() directory.GroupStore           { return &memGroups{s} }
func (s *memStore) Memberships() directory.MembershipStore { return &memMemberships{s} }
func (s *memStore) Grants() directory.GrantStore           { return &memGrants{s} }
func (s *memStore) Audit() directory.AuditStore            { return &memAudit{s} }

func (s *memStore) dropPrincipalLocked(p uuid.UUID) {
	for g := range s.grants {
		if g.PrincipalID == p {
			delete(s.grants, g)
		}
	}
}

// Users ---------------------------------------------------------------------

type memUsers struct{ s *memStore }

func (m *memUsers) Create(ctx context.Context, u *directory.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.users {
		if existing.Email == u.Email {
			return directory.ErrConflict
		}
		if existing.Username != nil && u.Username != nil && *existing.Username == *u.Username {
			return directory.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	clone := *u
	m.s.users[u.ID] = &clone
	return nil
}

func (m *memUsers) Find(ctx context.Context, id identity.UserID) (*directory.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, nil
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) FindByUsername(ctx context.Context, username string) (*directory.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Username != nil && *u.Username == username {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memUsers) SetDetails(ctx context.Context, id identity.UserID, details json.RawMessage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		u.Details = details
	}
	return nil
}

func (m *memUsers) Deactivate(ctx context.Context, id identity.UserID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u, ok := m.s.users[id]; ok {
		u.Active = false
	}
	return nil
}

func (m *memUsers) Delete(ctx context.Context, id identity.UserID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.users, id)
	m.s.dropPrincipalLocked(id.PrincipalID())
	kept := m.s.memberships[:0]
	for _, mem := range m.s.memberships {
		if mem.UserID != id {
			kept = append(kept, mem)
		}
	}
	m.s.memberships = kept
	for i := range m.s.audit {
		if m.s.audit[i].UserID != nil && *m.s.audit[i].UserID == id {
			m.s.audit[i].UserID = nil
		}
	}
	return nil
}

// Groups --------------------------------------------------------------------

type memGroups struct{ s *memStore }

func (m *memGroups) Create(ctx context.Context, g *directory.Group) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.groups {
		if existing.DisplayName == g.DisplayName {
			return directory.ErrConflict
		}
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	clone := *g
	m.s.groups[g.ID] = &clone
	return nil
}

func (m *memGroups) Find(ctx context.Context, id identity.GroupID) (*directory.Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	g, ok := m.s.groups[id]
	if !ok {
		return nil, nil
	}
	clone := *g
	return &clone, nil
}

func (m *memGroups) FindByDisplayName(ctx context.Context, name string) (*directory.Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, g := range m.s.groups {
		if g.DisplayName == name {
			clone := *g
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memGroups) SetDetails(ctx context.Context, id identity.GroupID, details json.RawMessage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g, ok := m.s.groups[id]; ok {
		g.Details = details
	}
	return nil
}

func (m *memGroups) Deactivate(ctx context.Context, id identity.GroupID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if g, ok := m.s.groups[id]; ok {
		g.Active = false
	}
	return nil
}

func (m *memGroups) Delete(ctx context.Context, id identity.GroupID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.groups, id)
	m.s.dropPrincipalLocked(id.PrincipalID())
	kept := m.s.memberships[:0]
	for _, mem := range m.s.memberships {
		if mem.GroupID != id {
			kept = append(kept, mem)
		}
	}
	m.s.memberships = kept
	return nil
}

// Memberships ---------------------------------------------------------------

type memMemberships struct{ s *memStore }

func (m *memMemberships) AddMember(ctx context.Context, mem *directory.Membership) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.memberships {
		if existing.GroupID == mem.GroupID && existing.UserID == mem.UserID {
			return directory.ErrConflict
		}
	}
	mem.CreatedAt = time.Now().UTC()
	m.s.memberships = append(m.s.memberships, *mem)
	return nil
}

func (m *memMemberships) RemoveMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	kept := m.s.memberships[:0]
	for _, mem := range m.s.memberships {
		if mem.GroupID != groupID || mem.UserID != userID {
			kept = append(kept, mem)
		}
	}
	m.s.memberships = kept
	return nil
}

func (m *memMemberships) IsMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, mem := range m.s.memberships {
		if mem.GroupID == groupID && mem.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memMemberships) Members(ctx context.Context, groupID identity.GroupID, page *directory.Page) ([]directory.Membership, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []directory.Membership
	for _, mem := range m.s.memberships {
		if mem.GroupID == groupID {
			out = append(out, mem)
		}
	}
	return window(out, page), nil
}

func (m *memMemberships) GroupsForUser(ctx context.Context, userID identity.UserID) ([]directory.Group, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []directory.Group
	for _, mem := range m.s.memberships {
		if mem.UserID != userID {
			continue
		}
		if g, ok := m.s.groups[mem.GroupID]; ok && g.Active {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memMemberships) HasRole(ctx context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, mem := range m.s.memberships {
		if mem.GroupID == groupID && mem.UserID == userID && mem.RoleName == roleName {
			return true, nil
		}
	}
	return false, nil
}

// Grants --------------------------------------------------------------------

type memGrants struct{ s *memStore }

func (m *memGrants) Allow(ctx context.Context, g directory.Grant) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.grants[g] = struct{}{}
	return nil
}

func (m *memGrants) Revoke(ctx context.Context, g directory.Grant) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	delete(m.s.grants, g)
	return nil
}

func (m *memGrants) HasRole(ctx context.Context, p directory.Principal, scopeKind, scopeID, roleName string) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	_, ok := m.s.grants[directory.Grant{
		PrincipalID: p.PrincipalID(),
		ScopeKind:   scopeKind,
		ScopeID:     scopeID,
		RoleName:    roleName,
	}]
	return ok, nil
}

func (m *memGrants) Roles(ctx context.Context, p directory.Principal) ([]directory.Grant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []directory.Grant
	for g := range m.s.grants {
		if g.PrincipalID == p.PrincipalID() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScopeKind != out[j].ScopeKind {
			return out[i].ScopeKind < out[j].ScopeKind
		}
		if out[i].ScopeID != out[j].ScopeID {
			return out[i].ScopeID < out[j].ScopeID
		}
		return out[i].RoleName < out[j].RoleName
	})
	return out, nil
}

func (m *memGrants) RolesInScope(ctx context.Context, p directory.Principal, scopeKind, scopeID string) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []string
	for g := range m.s.grants {
		if g.PrincipalID == p.PrincipalID() && g.ScopeKind == scopeKind && g.ScopeID == scopeID {
			out = append(out, g.RoleName)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Audit ---------------------------------------------------------------------

type memAudit struct{ s *memStore }

func (m *memAudit) Append(ctx context.Context, e *directory.AuditEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	m.s.audit = append(m.s.audit, *e)
	return nil
}

func (m *memAudit) EventsFor(ctx context.Context, userID identity.UserID, page *directory.Page) ([]directory.AuditEntry, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []directory.AuditEntry
	for i := len(m.s.audit) - 1; i >= 0; i-- {
		if m.s.audit[i].UserID != nil && *m.s.audit[i].UserID == userID {
			out = append(out, m.s.audit[i])
		}
	}
	return window(out, page), nil
}

func window[T any](items []T, page *directory.Page) []T {
	if page == nil {
		return items
	}
	if page.Offset >= int64(len(items)) {
		return nil
	}
	items = items[page.Offset:]
	if page.Limit < int64(len(items)) {
		items = items[:page.Limit]
	}
	return items
}
