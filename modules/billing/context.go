package billing

import (
	"context"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

type principalContextKey struct{}

// SetPrincipalToContext stores the authenticated principal in context
// for handler access. The host application's auth middleware is
// expected to call this before the billing routes run.
func SetPrincipalToContext(ctx context.Context, principal entitlement.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetPrincipalFromContext retrieves the authenticated principal.
// The second return value reports whether one was stored.
func GetPrincipalFromContext(ctx context.Context) (entitlement.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(entitlement.Principal)
	return principal, ok
}
