package cache

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidResultType is returned by GetOrFetch when the cached value
	// cannot be asserted to the requested type.
	ErrInvalidResultType = errors.New("cache: invalid result type")

	// ErrNilFetchFn is returned when GetOrFetch is called without a fetch function.
	ErrNilFetchFn = errors.New("cache: fetch function cannot be nil")
)

// KeySerializer builds a cache key from a method name + arbitrary args.
// It is responsible for producing stable keys across calls.
type KeySerializer interface {
	SerializeKey(method string, args ...any) string
}

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService exposes the read-through caching operations used by services
// and repository decorators. Clear follows the substring semantics of Cache.Clear.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn FetchFn[any]) (any, error)
	Delete(ctx context.Context, key string) error
	Clear(pattern string) int
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	var zero T
	if fetchFn == nil {
		return zero, ErrNilFetchFn
	}

	result, err := service.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetchFn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}

	typed, ok := result.(T)
	if !ok {
		return zero, errors.Wrapf(ErrInvalidResultType, "key %q holds %T", key, result)
	}
	return typed, nil
}
