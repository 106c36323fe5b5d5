// Package repositorycache decorates go-repository-bun repositories with
// read-through caching on a cache.CacheService.
//
// Keys are namespaced by table, e.g. "user_investments:GetByID::<id>", so a
// write can drop every cached read of a table with one Clear. Wire the
// repository to the owning service so commits clear related tables too:
//
//	base := repository.NewRepository[*Investment](db, handlers)
//	repo := repositorycache.New[*Investment](base, svc.Cache(),
//		repositorycache.WithTable("user_investments"),
//		repositorycache.WithInvalidator(svc),
//	)
//
// Reads with criteria are cached only under a name given with WithCacheKey.
// Transactional methods never touch the cache.
package repositorycache
