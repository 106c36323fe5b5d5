// Package service provides BaseService, the building block domain services
// embed to get a table-scoped cache, error classification and transactional
// retries over a bun.DB.
//
// A write runs through WithTransaction:
//
//	user, err := service.WithTransaction(ctx, s.BaseService, func(ctx context.Context, tx bun.IDB) (*User, error) {
//		_, err := tx.NewInsert().Model(u).Exec(ctx)
//		return u, err
//	})
//
// Failed attempts are rolled back and classified. VALIDATION_ERROR and
// NOT_FOUND are returned immediately; other kinds are retried with
// exponential backoff. On commit, the cache entries of the service table and
// every related table are cleared in all caches known to the Registry.
package service
