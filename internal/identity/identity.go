// Package identity defines the opaque identifier types used across the
// directory. User and group identifiers share a UUID representation but are
// distinct Go types, so one can never be passed where the other is expected.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrMalformed indicates an identifier failed to parse.
var ErrMalformed = errors.New("identity: malformed identifier")

// UserID identifies a user.
type UserID struct {
	uuid.UUID
}

// GroupID identifies a group.
type GroupID struct {
	uuid.UUID
}

// NewUserID returns a freshly generated user identifier.
func NewUserID() UserID {
	return UserID{uuid.New()}
}

// NewGroupID returns a freshly generated group identifier.
func NewGroupID() GroupID {
	return GroupID{uuid.New()}
}

// ParseUserID parses the canonical text form of a user identifier.
func ParseUserID(s string) (UserID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return UserID{id}, nil
}

// ParseGroupID parses the canonical text form of a group identifier.
func ParseGroupID(s string) (GroupID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GroupID{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return GroupID{id}, nil
}

// PrincipalID exposes the raw value so users can hold role grants.
func (id UserID) PrincipalID() uuid.UUID { return id.UUID }

// PrincipalID exposes the raw value so groups can hold role grants.
func (id GroupID) PrincipalID() uuid.UUID { return id.UUID }
