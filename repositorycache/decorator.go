package repositorycache

import (
	"context"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/usdfinancial/service-base/cache"
)

// Store is the part of repository.Repository that services use.
type Store[T any] interface {
	Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)

	GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error)
	ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error)

	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error)
	Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
	DeleteTx(ctx context.Context, tx bun.IDB, record T) error
}

// Every go-repository-bun repository is a Store.
var _ Store[any] = repository.Repository[any](nil)

// Invalidator clears cached entries of a table and the tables related to it.
// service.Registry and service.BaseService implement it.
type Invalidator interface {
	InvalidateTable(table string, extra ...string) int
}

// listResult is what List stores under one key.
type listResult[T any] struct {
	Records []T `json:"records"`
	Total   int `json:"total"`
}

// CachedRepository decorates a Store with read-through caching.
//
// Criteria are closures and cannot be told apart by value, so a read that
// passes criteria is only cached when the caller names the query with
// WithCacheKey; otherwise it goes to the store. Non-transactional writes
// invalidate the table through the Invalidator. *Tx writes do not: the
// transaction runner invalidates after COMMIT. *Tx reads bypass the cache.
type CachedRepository[T any] struct {
	base        Store[T]
	cache       cache.CacheService
	keys        cache.KeySerializer
	table       string
	invalidator Invalidator
}

// Option configures a CachedRepository.
type Option func(*options)

type options struct {
	table       string
	invalidator Invalidator
}

// WithTable sets the table namespace of the cache keys. It defaults to the
// snake_case name of T.
func WithTable(table string) Option {
	return func(o *options) { o.table = table }
}

// WithInvalidator routes write invalidation through inv so that related
// tables are cleared too. Without one, only this table's namespace in the
// repository cache is cleared.
func WithInvalidator(inv Invalidator) Option {
	return func(o *options) { o.invalidator = inv }
}

// New wraps base with caching on cacheService.
func New[T any](base Store[T], cacheService cache.CacheService, opts ...Option) *CachedRepository[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.table == "" {
		o.table = typeNamespace[T]()
	}

	return &CachedRepository[T]{
		base:        base,
		cache:       cacheService,
		keys:        cache.NewKeySerializer(o.table),
		table:       o.table,
		invalidator: o.invalidator,
	}
}

func typeNamespace[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return toSnake(t.Name())
}

// Table returns the key namespace.
func (c *CachedRepository[T]) Table() string {
	return c.table
}

// Base returns the wrapped store.
func (c *CachedRepository[T]) Base() Store[T] {
	return c.base
}

// key returns the cache key for a read, and false when the read must not be
// cached.
func (c *CachedRepository[T]) key(ctx context.Context, method string, hasCriteria bool, args ...any) (string, bool) {
	parts := keyPartsFromContext(ctx)
	if hasCriteria && len(parts) == 0 {
		return "", false
	}
	return c.keys.SerializeKey(method, append(args, parts...)...), true
}

// Get retrieves a single record.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.key(ctx, "Get", len(criteria) > 0)
	if !ok {
		return c.base.Get(ctx, criteria...)
	}
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID retrieves a record by primary key.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	key, ok := c.key(ctx, "GetByID", len(criteria) > 0, id)
	if !ok {
		return c.base.GetByID(ctx, id, criteria...)
	}
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List retrieves records and the total count as one cached unit.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	key, ok := c.key(ctx, "List", len(criteria) > 0)
	if !ok {
		return c.base.List(ctx, criteria...)
	}
	res, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of matching records.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	key, ok := c.key(ctx, "Count", len(criteria) > 0)
	if !ok {
		return c.base.Count(ctx, criteria...)
	}
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// Create inserts record and invalidates the table.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return result, err
}

func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.base.CreateTx(ctx, tx, record, criteria...)
}

// Update updates record and invalidates the table.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return result, err
}

func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.base.UpdateTx(ctx, tx, record, criteria...)
}

// Upsert inserts or updates record and invalidates the table.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.Invalidate()
	}
	return result, err
}

func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.base.UpsertTx(ctx, tx, record, criteria...)
}

// Delete removes record and invalidates the table.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.Invalidate()
	}
	return err
}

func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.base.DeleteTx(ctx, tx, record)
}

// Invalidate clears the table namespace, and the related tables when an
// Invalidator is set. It returns the number of entries removed.
func (c *CachedRepository[T]) Invalidate() int {
	if c.invalidator != nil {
		return c.invalidator.InvalidateTable(c.table)
	}
	return c.cache.Clear(cache.Namespace(c.table))
}
