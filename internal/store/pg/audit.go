package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
)

type auditStore struct{ db *sql.DB }

// Append writes one immutable entry, filling in ID and OccurredAt when the
// caller left them unset.
func (s *auditStore) Append(ctx context.Context, e *directory.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, user_id, action, occurred_at)
		values ($1, $2, $3, $4)
	`, e.ID, e.UserID, jsonPayload(e.Action), e.OccurredAt)
	return err
}

func (s *auditStore) EventsFor(ctx context.Context, userID identity.UserID, page *directory.Page) ([]directory.AuditEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if page != nil {
		rows, err = s.db.QueryContext(ctx, `
			select id, user_id, action, occurred_at
			from audit_log
			where user_id = $1
			order by occurred_at desc
			limit $2 offset $3
		`, userID, page.Limit, page.Offset)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			select id, user_id, action, occurred_at
			from audit_log
			where user_id = $1
			order by occurred_at desc
		`, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []directory.AuditEntry
	for rows.Next() {
		var (
			e      directory.AuditEntry
			actor  uuid.NullUUID
			action []byte
		)
		if err := rows.Scan(&e.ID, &actor, &action, &e.OccurredAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			id := identity.UserID{UUID: actor.UUID}
			e.UserID = &id
		}
		e.Action = json.RawMessage(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
