package auth

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleGuest      = "guest"
	RoleHost       = "host"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Identity is the authenticated caller resolved from a bearer token.
type Identity struct {
	UserID snowflake.ID
	Role   string
	Email  string
}

// IsAdmin reports whether the identity may run back-office booking actions.
func (i Identity) IsAdmin() bool {
	switch strings.ToLower(strings.TrimSpace(i.Role)) {
	case RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || identity.UserID == 0 {
		return Identity{}, false
	}
	return identity, true
}
