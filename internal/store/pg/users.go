package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

type userStore struct{ db *sql.DB }

const userColumns = `id, username, email, details, active, created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *directory.User) error {
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, details, active)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, u.ID, u.Username, u.Email, jsonPayload(u.Details), u.Active)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapCreateError(err)
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id identity.UserID) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id)
	return scanUser(row)
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where username = $1
	`, username)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1
	`, email)
	return scanUser(row)
}

// SetDetails replaces the profile payload in full.
func (s *userStore) SetDetails(ctx context.Context, id identity.UserID, details json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		update users
		set details = $1, updated_at = now()
		where id = $2
	`, jsonPayload(details), id)
	return err
}

func (s *userStore) Deactivate(ctx context.Context, id identity.UserID) error {
	_, err := s.db.ExecContext(ctx, `
		update users
		set active = false, updated_at = now()
		where id = $1
	`, id)
	return err
}

// Delete removes the user and, in the same transaction, every grant the user
// holds. Memberships cascade through foreign keys and audit entries keep
// their rows with the attribution nulled; grants have no foreign key because
// principal_id may reference either table.
func (s *userStore) Delete(ctx context.Context, id identity.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_grants where principal_id = $1`, id.PrincipalID()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from users where id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func scanUser(row *sql.Row) (*directory.User, error) {
	var (
		u        directory.User
		username sql.NullString
		details  []byte
	)
	err := row.Scan(&u.ID, &username, &u.Email, &details, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if username.Valid {
		u.Username = &username.String
	}
	if len(details) > 0 {
		u.Details = json.RawMessage(details)
	}
	return &u, nil
}
