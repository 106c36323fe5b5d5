package service

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/cache"
)

// Clearer is anything holding table-namespaced cache entries.
type Clearer interface {
	Clear(pattern string) int
}

// DefaultRelations lists which tables are affected by writes to another.
func DefaultRelations() map[string][]string {
	return map[string][]string{
		"users": {"user_investments", "stablecoin_balances", "user_sessions", "login_history"},
	}
}

// Registry tracks every service cache in the process so a commit on one
// table can clear entries for related tables held by other services.
// The relations map is fixed at construction.
type Registry struct {
	relations map[string][]string
	caches    *xsync.MapOf[string, Clearer]
	logger    *zap.Logger
}

// NewRegistry creates a Registry. A nil relations map uses DefaultRelations.
func NewRegistry(relations map[string][]string, logger *zap.Logger) *Registry {
	if relations == nil {
		relations = DefaultRelations()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	copied := make(map[string][]string, len(relations))
	for table, related := range relations {
		copied[table] = append([]string(nil), related...)
	}

	return &Registry{
		relations: copied,
		caches:    xsync.NewMapOf[string, Clearer](),
		logger:    logger,
	}
}

// Register adds c under name, replacing any previous cache with that name.
func (r *Registry) Register(name string, c Clearer) {
	r.caches.Store(name, c)
}

// Unregister removes the cache registered under name.
func (r *Registry) Unregister(name string) {
	r.caches.Delete(name)
}

// Lookup returns the cache registered under name.
func (r *Registry) Lookup(name string) (Clearer, bool) {
	return r.caches.Load(name)
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.caches.Size())
	r.caches.Range(func(name string, _ Clearer) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Related returns the tables declared as affected by writes to table.
func (r *Registry) Related(table string) []string {
	return append([]string(nil), r.relations[table]...)
}

// Relations returns a copy of the relations map.
func (r *Registry) Relations() map[string][]string {
	out := make(map[string][]string, len(r.relations))
	for table := range r.relations {
		out[table] = r.Related(table)
	}
	return out
}

// InvalidateTable clears the namespace of table, of every table related to
// it, and of extra, in every registered cache. It returns the number of
// entries removed.
func (r *Registry) InvalidateTable(table string, extra ...string) int {
	tables := affectedTables(table, r.relations[table], extra)

	removed := 0
	r.caches.Range(func(_ string, c Clearer) bool {
		for _, t := range tables {
			removed += c.Clear(cache.Namespace(t))
		}
		return true
	})

	r.logger.Debug("cache invalidated",
		zap.String("table", table),
		zap.Strings("tables", tables),
		zap.Int("removed", removed),
	)
	return removed
}

func affectedTables(table string, groups ...[]string) []string {
	seen := map[string]bool{table: true}
	tables := []string{table}
	for _, group := range groups {
		for _, t := range group {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			tables = append(tables, t)
		}
	}
	return tables
}
