package authn

import (
	"context"

	"scopeauth.org/internal/identity"
)

type userContextKey struct{}

// ContextWithUser attaches the authenticated caller to the context.
func ContextWithUser(ctx context.Context, id identity.UserID) context.Context {
	return context.WithValue(ctx, userContextKey{}, id)
}

// UserFromContext extracts the authenticated caller from the context.
func UserFromContext(ctx context.Context) (identity.UserID, bool) {
	if ctx == nil {
		return identity.UserID{}, false
	}
	v, ok := ctx.Value(userContextKey{}).(identity.UserID)
	return v, ok
}
