package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/serviceerr"
	"github.com/usdfinancial/service-base/validate"
)

// BaseService is embedded by domain services. It owns a cache namespaced by
// the service's table and routes every failure through the classifier.
type BaseService struct {
	db      *bun.DB
	name    string
	table   string
	related []string

	cache      *cache.Cache
	cacheCfg   *cache.Config
	keys       cache.KeySerializer
	classifier *serviceerr.Classifier
	registry   *Registry
	metrics    *Metrics
	retry      RetryPolicy
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a BaseService.
type Option func(*BaseService)

// WithCache makes the service use c instead of a private cache.
func WithCache(c *cache.Cache) Option {
	return func(s *BaseService) { s.cache = c }
}

// WithCacheConfig sizes the private cache. Ignored when WithCache is set.
func WithCacheConfig(cfg cache.Config) Option {
	return func(s *BaseService) { s.cacheCfg = &cfg }
}

// WithClassifier sets the error classifier.
func WithClassifier(c *serviceerr.Classifier) Option {
	return func(s *BaseService) { s.classifier = c }
}

// WithRegistry registers the service cache in r so commits elsewhere can
// invalidate it, and routes this service's invalidations through r.
func WithRegistry(r *Registry) Option {
	return func(s *BaseService) { s.registry = r }
}

// WithRelatedTables declares tables whose cached entries go stale when this
// service commits.
func WithRelatedTables(tables ...string) Option {
	return func(s *BaseService) { s.related = append(s.related, tables...) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *BaseService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetryPolicy sets the transaction retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *BaseService) { s.retry = p }
}

// WithMetrics records transaction and error counters and exports cache stats.
func WithMetrics(m *Metrics) Option {
	return func(s *BaseService) { s.metrics = m }
}

// WithServiceClock sets the time source used for health timestamps.
func WithServiceClock(now func() time.Time) Option {
	return func(s *BaseService) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a BaseService for table. name identifies the service in logs,
// errors and the registry.
func New(db *bun.DB, name, table string, opts ...Option) (*BaseService, error) {
	if db == nil {
		return nil, errors.New("service: db is required")
	}
	if name == "" || table == "" {
		return nil, errors.Newf("service: name and table are required (name=%q table=%q)", name, table)
	}

	s := &BaseService{
		db:     db,
		name:   name,
		table:  table,
		retry:  DefaultRetryPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.retry.Validate(); err != nil {
		return nil, errors.Wrapf(err, "service %s", name)
	}

	if s.cache == nil {
		cfg := cache.DefaultConfig()
		if s.cacheCfg != nil {
			if err := s.cacheCfg.Validate(); err != nil {
				return nil, errors.Wrapf(err, "service %s", name)
			}
			cfg = *s.cacheCfg
		}
		s.cache = cache.New(cfg)
	}

	if s.classifier == nil {
		s.classifier = serviceerr.NewClassifier(codesFor(db), serviceerr.WithLogger(s.logger))
	}

	s.keys = cache.NewKeySerializer(table)
	s.logger = s.logger.With(zap.String("service", name), zap.String("table", table))

	if s.registry != nil {
		s.registry.Register(name, s.cache)
	}
	s.metrics.TrackCache(name, s.cache)

	return s, nil
}

func codesFor(db *bun.DB) serviceerr.CodeTable {
	if db.Dialect().Name() == dialect.SQLite {
		return serviceerr.SQLiteCodes()
	}
	return serviceerr.PostgresCodes()
}

func (s *BaseService) Name() string        { return s.name }
func (s *BaseService) Table() string       { return s.table }
func (s *BaseService) DB() *bun.DB         { return s.db }
func (s *BaseService) Logger() *zap.Logger { return s.logger }

// RelatedTables returns the tables declared with WithRelatedTables.
func (s *BaseService) RelatedTables() []string {
	return append([]string(nil), s.related...)
}

// Cache returns the service cache.
func (s *BaseService) Cache() *cache.Cache {
	return s.cache
}

// CacheKey builds a key in the service's table namespace.
func (s *BaseService) CacheKey(method string, args ...any) string {
	return s.keys.SerializeKey(method, args...)
}

// GetCache reads key from the service cache.
func (s *BaseService) GetCache(key string) (any, bool) {
	return s.cache.Get(key)
}

// SetCache stores value under key. A ttl of zero uses the cache default.
func (s *BaseService) SetCache(key string, value any, ttl time.Duration) {
	s.cache.Set(key, value, ttl)
}

// ClearCache removes keys containing pattern from the service cache only.
// An empty pattern clears everything.
func (s *BaseService) ClearCache(pattern string) int {
	return s.cache.Clear(pattern)
}

// CacheStats reports the service cache counters.
func (s *BaseService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// InvalidateTable clears cached entries for table, its related tables and
// extra. Writes to the service's own table also clear the tables declared
// with WithRelatedTables. Without a registry only this service's cache is
// touched.
func (s *BaseService) InvalidateTable(table string, extra ...string) int {
	if table == s.table {
		extra = append(append([]string(nil), extra...), s.related...)
	}
	if s.registry != nil {
		return s.registry.InvalidateTable(table, extra...)
	}

	removed := 0
	for _, t := range affectedTables(table, extra) {
		removed += s.cache.Clear(cache.Namespace(t))
	}
	return removed
}

// HandleError classifies err as a failure of operation. It returns nil for
// a nil err and a *serviceerr.ServiceError otherwise.
func (s *BaseService) HandleError(err error, operation string) error {
	if err == nil {
		return nil
	}
	return s.classify(err, operation)
}

func (s *BaseService) classify(err error, operation string) *serviceerr.ServiceError {
	se := s.classifier.Classify(err, operation, s.name, s.table)
	s.metrics.RecordError(s.name, se.Kind)
	return se
}

// Exec runs a write statement outside any transaction. Failures are
// classified and never retried.
func (s *BaseService) Exec(ctx context.Context, operation, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, s.classify(err, operation)
	}
	return res, nil
}

// Raw runs query and scans the result into dest.
func (s *BaseService) Raw(ctx context.Context, operation string, dest any, query string, args ...any) error {
	if err := s.db.NewRaw(query, args...).Scan(ctx, dest); err != nil {
		return s.classify(err, operation)
	}
	return nil
}

// Cached reads through the service cache under CacheKey(operation, args...).
// Fetch errors are classified and not cached.
func Cached[T any](ctx context.Context, s *BaseService, operation string, fetch cache.FetchFn[T], args ...any) (T, error) {
	result, err := cache.GetOrFetch[T](ctx, s.cache, s.CacheKey(operation, args...), fetch)
	if err != nil {
		var zero T
		return zero, s.classify(err, operation)
	}
	return result, nil
}

// FindByID loads the row whose id column equals id, caching the result.
// T must be a bun model mapped to the service table.
func FindByID[T any](ctx context.Context, s *BaseService, id string) (*T, error) {
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.classify(err, "findById")
	}

	return Cached[*T](ctx, s, "findById", func(ctx context.Context) (*T, error) {
		row := new(T)
		err := s.db.NewSelect().
			Model(row).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return nil, err
		}
		return row, nil
	}, id)
}
