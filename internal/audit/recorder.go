package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"scopeauth.org/internal/directory"
	"scopeauth.org/internal/identity"
	"scopeauth.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// recording.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder persists audit entries and mirrors each one as a structured log
// line.
type Recorder struct {
	sink directory.AuditStore
}

// NewRecorder wraps the given sink.
func NewRecorder(sink directory.AuditStore) *Recorder {
	return &Recorder{sink: sink}
}

// Record appends one audit entry attributed to actor. The op names the
// operation performed; fields carry operation-specific detail. The request id
// is picked up from ctx when present.
func (r *Recorder) Record(ctx context.Context, actor *identity.UserID, op string, fields map[string]any) error {
	op = strings.TrimSpace(op)
	if op == "" {
		return errors.New("audit op is required")
	}

	action := map[string]any{"op": op}
	if rid := RequestIDFromContext(ctx); rid != "" {
		action["request_id"] = rid
	}
	for k, v := range fields {
		action[k] = v
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}

	entry := directory.AuditEntry{
		UserID:     actor,
		Action:     payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := r.sink.Append(ctx, &entry); err != nil {
		return err
	}

	line := map[string]any{
		"type":   "audit",
		"op":     op,
		"id":     entry.ID.String(),
		"action": json.RawMessage(payload),
	}
	if actor != nil {
		line["user_id"] = actor.String()
	}
	obs.Emit("info", "audit_event", line)
	return nil
}
