package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

type groupStore struct{ db *sql.DB }

const groupColumns = `id, display_name, details, active, created_at, updated_at`

func (s *groupStore) Create(ctx context.Context, g *directory.Group) error {
	row := s.db.QueryRowContext(ctx, `
		insert into groups (id, display_name, details, active)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, g.ID, g.DisplayName, jsonPayload(g.Details), g.Active)
	if err := row.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
		return mapCreateError(err)
	}
	return nil
}

func (s *groupStore) Find(ctx context.Context, id identity.GroupID) (*directory.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+groupColumns+`
		from groups
		where id = $1
	`, id)
	return scanGroup(row)
}

func (s *groupStore) FindByDisplayName(ctx context.Context, name string) (*directory.Group, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+groupColumns+`
		from groups
		where display_name = $1
	`, name)
	return scanGroup(row)
}

func (s *groupStore) SetDetails(ctx context.Context, id identity.GroupID, details json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		update groups
		set details = $1, updated_at = now()
		where id = $2
	`, jsonPayload(details), id)
	return err
}

func (s *groupStore) Deactivate(ctx context.Context, id identity.GroupID) error {
	_, err := s.db.ExecContext(ctx, `
		update groups
		set active = false, updated_at = now()
		where id = $1
	`, id)
	return err
}

// Delete mirrors the user cascade: group grants go in the same transaction,
// memberships cascade through their foreign key.
func (s *groupStore) Delete(ctx context.Context, id identity.GroupID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_grants where principal_id = $1`, id.PrincipalID()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from groups where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func scanGroup(row *sql.Row) (*directory.Group, error) {
	var (
		g       directory.Group
		details []byte
	)
	err := row.Scan(&g.ID, &g.DisplayName, &details, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		g.Details = json.RawMessage(details)
	}
	return &g, nil
}
