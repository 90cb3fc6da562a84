// Package pg implements the directory stores on PostgreSQL. Every operation
// is a single parameterized statement; the only transactions are the
// hard-delete cascades that remove a principal's grants together with the
// owning row.
package pg

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"scopeauth.org/internal/directory"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store provides access to the directory relations over a shared pool.
type Store struct {
	db *sql.DB
}

var _ directory.Store = (*Store)(nil)

// Open connects to PostgreSQL and applies tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool, mostly for tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users() directory.UserStore             { return &userStore{db: s.db} }
func (s *Store) Groups() directory.GroupStore           { return &groupStore{db: s.db} }
func (s *Store) Memberships() directory.MembershipStore { return &membershipStore{db: s.db} }
func (s *Store) Grants() directory.GrantStore           { return &grantStore{db: s.db} }
func (s *Store) Audit() directory.AuditStore            { return &auditStore{db: s.db} }

// jsonPayload binds a schema-free payload column. A nil RawMessage would be
// encoded as SQL NULL, which the not-null jsonb columns reject, so absence
// coalesces to the empty document.
func jsonPayload(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte(`{}`)
	}
	return []byte(raw)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// mapCreateError translates key violations into the domain taxonomy: unique
// violations become ErrConflict, dangling references become ErrInvalidInput.
func mapCreateError(err error) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return directory.ErrConflict
		case pgErrForeignKeyViolation:
			return directory.ErrInvalidInput
		}
	}
	return err
}
