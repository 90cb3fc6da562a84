package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

type membershipStore struct{ db *sql.DB }

func (s *membershipStore) AddMember(ctx context.Context, m *directory.Membership) error {
	row := s.db.QueryRowContext(ctx, `
		insert into group_memberships (group_id, user_id, role_name)
		values ($1, $2, $3)
		returning created_at
	`, m.GroupID, m.UserID, m.RoleName)
	if err := row.Scan(&m.CreatedAt); err != nil {
		return mapCreateError(err)
	}
	return nil
}

func (s *membershipStore) RemoveMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		delete from group_memberships
		where group_id = $1 and user_id = $2
	`, groupID, userID)
	return err
}

func (s *membershipStore) IsMember(ctx context.Context, groupID identity.GroupID, userID identity.UserID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from group_memberships
			where group_id = $1 and user_id = $2
		)
	`, groupID, userID).Scan(&exists)
	return exists, err
}

// Members lists memberships in insertion order; seq is a bigserial assigned
// at insert time.
func (s *membershipStore) Members(ctx context.Context, groupID identity.GroupID, page *directory.Page) ([]directory.Membership, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if page != nil {
		rows, err = s.db.QueryContext(ctx, `
			select group_id, user_id, role_name, created_at
			from group_memberships
			where group_id = $1
			order by seq asc
			limit $2 offset $3
		`, groupID, page.Limit, page.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select group_id, user_id, role_name, created_at
			from group_memberships
			where group_id = $1
			order by seq asc
		`, groupID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []directory.Membership
	for rows.Next() {
		var m directory.Membership
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.RoleName, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *membershipStore) GroupsForUser(ctx context.Context, userID identity.UserID) ([]directory.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		select g.id, g.display_name, g.details, g.active, g.created_at, g.updated_at
		from group_memberships m
		join groups g on g.id = m.group_id
		where m.user_id = $1 and g.active = true
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []directory.Group
	for rows.Next() {
		var (
			g       directory.Group
			details []byte
		)
		if err := rows.Scan(&g.ID, &g.DisplayName, &details, &g.Active, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			g.Details = json.RawMessage(details)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *membershipStore) HasRole(ctx context.Context, groupID identity.GroupID, userID identity.UserID, roleName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from group_memberships
			where group_id = $1 and user_id = $2 and role_name = $3
		)
	`, groupID, userID, roleName).Scan(&exists)
	return exists, err
}
