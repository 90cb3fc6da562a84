package pg

import (
	"context"
	"database/sql"

	"scopeauth.org/internal/directory"
)

// grantStore is the scoped role-grant engine. Global roles are ordinary rows
// carrying the reserved ("global", "global") pair; every scope is checked by
// the same query shape.
type grantStore struct{ db *sql.DB }

// Allow inserts the grant. Concurrent or repeated grants of the same tuple
// resolve through on-conflict-do-nothing, not locking.
func (s *grantStore) Allow(ctx context.Context, g directory.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_grants (principal_id, scope_kind, scope_id, role_name)
		values ($1, $2, $3, $4)
		on conflict (principal_id, scope_kind, scope_id, role_name) do nothing
	`, g.PrincipalID, g.ScopeKind, g.ScopeID, g.RoleName)
	return err
}

// Revoke deletes the grant; an absent tuple is a successful no-op.
func (s *grantStore) Revoke(ctx context.Context, g directory.Grant) error {
	_, err := s.db.ExecContext(ctx, `
		delete from role_grants
		where principal_id = $1
		  and scope_kind = $2
		  and scope_id = $3
		  and role_name = $4
	`, g.PrincipalID, g.ScopeKind, g.ScopeID, g.RoleName)
	return err
}

func (s *grantStore) HasRole(ctx context.Context, p directory.Principal, scopeKind, scopeID, roleName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from role_grants
			where principal_id = $1
			  and scope_kind = $2
			  and scope_id = $3
			  and role_name = $4
		)
	`, p.PrincipalID(), scopeKind, scopeID, roleName).Scan(&exists)
	return exists, err
}

// Roles returns every grant ordered by (scope_kind, scope_id, role_name);
// consumers diff against the sequence, so the ordering is part of the
// contract.
func (s *grantStore) Roles(ctx context.Context, p directory.Principal) ([]directory.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select principal_id, scope_kind, scope_id, role_name
		from role_grants
		where principal_id = $1
		order by scope_kind asc, scope_id asc, role_name asc
	`, p.PrincipalID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []directory.Grant
	for rows.Next() {
		var g directory.Grant
		if err := rows.Scan(&g.PrincipalID, &g.ScopeKind, &g.ScopeID, &g.RoleName); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *grantStore) RolesInScope(ctx context.Context, p directory.Principal, scopeKind, scopeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_name
		from role_grants
		where principal_id = $1
		  and scope_kind = $2
		  and scope_id = $3
		order by role_name asc
	`, p.PrincipalID(), scopeKind, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
