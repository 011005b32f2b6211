package middleware

import (
	"context"

	"github.com/google/uuid"
)

type identityKey struct{}

// Identity is the caller as established by Auth.
type Identity struct {
	UserID     uuid.UUID
	Role       string
	BusinessID *uuid.UUID
	DriverID   *uuid.UUID
}

// WithIdentity seeds the context the same way Auth does. Handler tests use it directly.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFrom(ctx); ok && id.UserID != uuid.Nil {
		return id.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return id.Role
}

func BusinessIDFromContext(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return optionalString(id.BusinessID)
}

func DriverIDFromContext(ctx context.Context) string {
	id, _ := IdentityFrom(ctx)
	return optionalString(id.DriverID)
}

func optionalString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
