package gateway

import (
	"context"

	"github.com/goliatone/go-router"
)

var identityCtxKey = &contextKey{"identity"}

type contextKey struct {
	name string
}

// WithIdentity sets the ResolvedIdentity in the given context
func WithIdentity(r context.Context, identity *ResolvedIdentity) context.Context {
	return context.WithValue(r, identityCtxKey, identity)
}

// IdentityFromContext finds the resolved identity in the standard context.
func IdentityFromContext(ctx context.Context) (*ResolvedIdentity, bool) {
	raw, ok := ctx.Value(identityCtxKey).(*ResolvedIdentity)
	return raw, ok
}

// RouterIdentity extracts the resolved identity from the router context
func RouterIdentity(ctx router.Context, key string) (*ResolvedIdentity, bool) {
	if key == "" {
		key = "identity" // Default key used by the gatekeeper middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	identity, ok := raw.(*ResolvedIdentity)
	return identity, ok
}

// AccountIDFromContext is a convenience accessor for handlers that only need
// the account id.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return identity.AccountID.String(), true
}
