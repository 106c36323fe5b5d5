package di

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/config"
	"github.com/usdfinancial/service-base/internal/cacheinfra"
	"github.com/usdfinancial/service-base/internal/domain/investment"
	"github.com/usdfinancial/service-base/internal/domain/user"
	"github.com/usdfinancial/service-base/repositorycache"
	"github.com/usdfinancial/service-base/service"
	"github.com/usdfinancial/service-base/serviceerr"
)

// SharedCacheName is the registry name of the sturdyc repository cache.
const SharedCacheName = "repositories"

// Container owns the process-wide pieces every service shares: the database
// handle, logger, error classifier, invalidation registry and metrics.
// Services built through it are wired to all of them.
type Container struct {
	config     config.Config
	db         *bun.DB
	logger     *zap.Logger
	classifier *serviceerr.Classifier
	registry   *service.Registry
	metrics    *service.Metrics
	shared     *cacheinfra.Shared

	services []*service.BaseService
}

// Option configures a Container.
type Option func(*Container)

// WithDB makes the container use db instead of opening cfg.Database.
// The container still closes it.
func WithDB(db *bun.DB) Option {
	return func(c *Container) { c.db = db }
}

// WithLogger overrides the logger built from cfg.LogLevel.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// NewContainer validates cfg and builds the shared dependencies. ctx bounds
// the initial database ping.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		logger, err := cfg.NewLogger()
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	codes, err := CodeTable(cfg)
	if err != nil {
		return nil, err
	}
	c.classifier = serviceerr.NewClassifier(codes, serviceerr.WithLogger(c.logger))
	c.registry = service.NewRegistry(cfg.Relations, c.logger)
	c.metrics = service.NewMetrics(cfg.MetricsNamespace)

	if cfg.CacheBackend == config.BackendSturdyc {
		shared, err := cacheinfra.NewShared(cfg.Sturdyc)
		if err != nil {
			return nil, err
		}
		c.shared = shared
		c.registry.Register(SharedCacheName, shared)
		c.metrics.TrackCache(SharedCacheName, shared)
	}

	if c.db == nil {
		db, err := OpenDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		c.db = db
	}

	return c, nil
}

// CodeTable returns the driver's built-in code table with cfg.CodesPath
// merged over it.
func CodeTable(cfg config.Config) (serviceerr.CodeTable, error) {
	codes := serviceerr.CodesForDriver(cfg.Database.Driver)
	if cfg.CodesPath == "" {
		return codes, nil
	}
	loaded, err := serviceerr.LoadCodeTable(cfg.CodesPath)
	if err != nil {
		return serviceerr.CodeTable{}, err
	}
	return codes.Merge(loaded), nil
}

// OpenDB opens and pings the configured database with the matching bun dialect.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	var db *bun.DB
	switch cfg.Driver {
	case config.DriverSQLite:
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		db = bun.NewDB(sqldb, pgdialect.New())
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", cfg.Driver)
	}
	return db, nil
}

func (c *Container) Config() config.Config              { return c.config }
func (c *Container) DB() *bun.DB                        { return c.db }
func (c *Container) Logger() *zap.Logger                { return c.logger }
func (c *Container) Classifier() *serviceerr.Classifier { return c.classifier }
func (c *Container) Registry() *service.Registry        { return c.registry }
func (c *Container) Metrics() *service.Metrics          { return c.metrics }

// SharedCache returns the sturdyc repository cache, or nil with the memory
// backend.
func (c *Container) SharedCache() *cacheinfra.Shared {
	return c.shared
}

// RepositoryCache returns the cache repositories of base should read through:
// the shared cache when configured, otherwise the service's own cache.
func (c *Container) RepositoryCache(base *service.BaseService) cache.CacheService {
	if c.shared != nil {
		return c.shared
	}
	return base.Cache()
}

// NewService creates a BaseService wired to the container. opts run after the
// container defaults and can override them.
func (c *Container) NewService(name, table string, opts ...service.Option) (*service.BaseService, error) {
	defaults := []service.Option{
		service.WithClassifier(c.classifier),
		service.WithRegistry(c.registry),
		service.WithMetrics(c.metrics),
		service.WithLogger(c.logger),
		service.WithRetryPolicy(c.config.Retry),
		service.WithCacheConfig(c.config.Cache),
	}

	s, err := service.New(c.db, name, table, append(defaults, opts...)...)
	if err != nil {
		return nil, err
	}
	c.services = append(c.services, s)
	return s, nil
}

// Services returns the services created so far, in creation order.
func (c *Container) Services() []*service.BaseService {
	return append([]*service.BaseService(nil), c.services...)
}

// NewUserService builds the users service on a go-repository-bun repository.
func (c *Container) NewUserService(opts ...user.Option) (*user.Service, error) {
	base, err := c.NewService("UserService", user.Table)
	if err != nil {
		return nil, err
	}
	opts = append([]user.Option{user.WithRepositoryCache(c.RepositoryCache(base))}, opts...)
	return user.NewService(base, user.NewRepository(c.db), opts...), nil
}

// NewInvestmentService builds the user_investments service.
func (c *Container) NewInvestmentService(opts ...investment.Option) (*investment.Service, error) {
	base, err := c.NewService("InvestmentService", investment.Table)
	if err != nil {
		return nil, err
	}
	opts = append([]investment.Option{investment.WithRepositoryCache(c.RepositoryCache(base))}, opts...)
	return investment.NewService(base, investment.NewRepository(c.db), opts...), nil
}

// HealthCheck checks every service created by the container.
func (c *Container) HealthCheck(ctx context.Context) []service.HealthReport {
	reports := make([]service.HealthReport, 0, len(c.services))
	for _, s := range c.services {
		reports = append(reports, s.HealthCheck(ctx))
	}
	return reports
}

// Close unregisters the services and closes the database.
func (c *Container) Close() error {
	for _, s := range c.services {
		c.registry.Unregister(s.Name())
		c.metrics.UntrackCache(s.Name())
	}
	c.services = nil
	_ = c.logger.Sync()
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// NewCachedRepository wraps store with read-through caching for base's table.
// Writes outside transactions invalidate through base, so related tables are
// cleared as well.
//
// Since Go methods cannot have type parameters, this is a package-level function.
func NewCachedRepository[T any](c *Container, base *service.BaseService, store repositorycache.Store[T]) *repositorycache.CachedRepository[T] {
	return repositorycache.New(store, c.RepositoryCache(base),
		repositorycache.WithTable(base.Table()),
		repositorycache.WithInvalidator(base),
	)
}
