package directory

import "errors"

var (
	// ErrConflict is returned when a create or add violates a uniqueness
	// constraint. Idempotent mutations (Allow, Revoke, Deactivate,
	// RemoveMember) never return it; absence there is a successful no-op.
	ErrConflict = errors.New("directory: conflict")

	// ErrInvalidInput flags a malformed or missing argument before it
	// reaches storage.
	ErrInvalidInput = errors.New("directory: invalid input")
)
