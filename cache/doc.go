// Package cache provides the per-service result cache and key serialization.
//
// # Overview
//
// Cache is a bounded, in-memory, TTL based store owned by exactly one service.
// It tracks hits, misses and evictions for the lifetime of the process and
// exposes them through Stats:
//
//	c := cache.New(cache.DefaultConfig())
//	c.Set("users:GetByID::42", user, time.Minute)
//	v, ok := c.Get("users:GetByID::42")
//	removed := c.Clear("users:")      // substring match, not a regex
//	fmt.Println(c.Stats().HitRate)     // "100.00%"
//
// # Expiry and eviction
//
// Expiry is lazy: an entry past its deadline is removed by the Get that finds
// it. Reads never extend the deadline.
//
// When Set adds a new key to a full cache, the entry with the lowest hit count
// is evicted. Among entries with equal hit counts, the one expiring first goes.
// This is frequency first, not recency first, and callers depend on the exact
// order.
//
// # Read-through usage
//
// Cache implements CacheService, so the generic GetOrFetch helper works with it:
//
//	user, err := cache.GetOrFetch(ctx, c, key, func(ctx context.Context) (*User, error) {
//		return repo.GetByID(ctx, id)
//	})
//
// Fetch errors are returned to the caller and never cached.
//
// # Keys
//
// NewKeySerializer(namespace) renders keys as namespace:method::arg::arg. All
// keys for a table share the prefix Namespace(table), which is what cross-table
// invalidation clears. Function arguments (for example query criteria) are keyed
// by pointer and are only stable within one process.
package cache
