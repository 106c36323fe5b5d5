package repositorycache

import (
	"context"
)

type cacheKeyContextKey struct{}

// WithCacheKey names the query of the next criteria-based read so its result
// can be cached. parts must identify everything the criteria filter on:
//
//	ctx = repositorycache.WithCacheKey(ctx, "byUser", userID)
//	rows, total, err := repo.List(ctx, byUser(userID))
//
// Calls append to parts already on ctx.
func WithCacheKey(ctx context.Context, parts ...any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(parts) == 0 {
		return ctx
	}

	combined := append(keyPartsFromContext(ctx), parts...)
	return context.WithValue(ctx, cacheKeyContextKey{}, combined)
}

func keyPartsFromContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	if parts, ok := ctx.Value(cacheKeyContextKey{}).([]any); ok {
		return append([]any(nil), parts...)
	}
	return nil
}
