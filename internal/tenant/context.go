package tenant

import (
	"context"
	"errors"
)

// ErrMissingKey is returned when no tenant key is present in the context.
var ErrMissingKey = errors.New("tenant key missing from context")

type keyCtxKey struct{}

// WithKey adds a tenant key to the context.
func WithKey(ctx context.Context, key Key) context.Context {
	return context.WithValue(ctx, keyCtxKey{}, key)
}

// KeyFromContext extracts the tenant key. Fails closed.
func KeyFromContext(ctx context.Context) (Key, error) {
	key, ok := ctx.Value(keyCtxKey{}).(Key)
	if !ok {
		return Key{}, ErrMissingKey
	}
	return key, nil
}
