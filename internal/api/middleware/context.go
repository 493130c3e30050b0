package middleware

import (
	"context"
	"net/http"

	"github.com/shopfloor/shopfloor/pkg/models"
)

type contextKey string

const (
	identityKey   contextKey = "identity"
	authSourceKey contextKey = "auth_source"
)

// SetIdentity stores the authenticated caller in ctx.
func SetIdentity(ctx context.Context, ident models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// GetIdentity returns the caller set by Authenticate.
func GetIdentity(r *http.Request) (models.Identity, bool) {
	ident, ok := r.Context().Value(identityKey).(models.Identity)
	return ident, ok
}

func setAuthSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, authSourceKey, source)
}

// GetAuthSource reports how the caller authenticated: "jwt" or "api_key".
func GetAuthSource(r *http.Request) string {
	s, _ := r.Context().Value(authSourceKey).(string)
	return s
}
