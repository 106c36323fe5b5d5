package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/pkg/testsupport"
)

func newFilledCache(keys ...string) *cache.Cache {
	c := cache.New(cache.Config{MaxSize: 100, DefaultTTL: time.Minute})
	for _, k := range keys {
		c.Set(k, true, 0)
	}
	return c
}

func TestRegistry_InvalidateTable(t *testing.T) {
	r := NewRegistry(nil, nil)

	users := newFilledCache("users:get::1", "user_sessions:active::1", "system:config")
	balances := newFilledCache("stablecoin_balances:byUser::1", "loans:byUser::1")
	r.Register("UserService", users)
	r.Register("WalletService", balances)

	removed := r.InvalidateTable("users")

	assert.Equal(t, 3, removed)
	assert.Equal(t, 1, users.Len())
	assert.Equal(t, 1, balances.Len())
	_, ok := balances.Get("loans:byUser::1")
	assert.True(t, ok)
}

func TestRegistry_InvalidateUnrelatedTable(t *testing.T) {
	r := NewRegistry(nil, nil)
	c := newFilledCache("users:get::1", "user_investments:list::1")
	r.Register("svc", c)

	assert.Equal(t, 1, r.InvalidateTable("user_investments"))
	assert.Equal(t, 1, c.Len(), "writes to a child table must not clear the parent")
}

func TestRegistry_ExtraTablesAreDeduplicated(t *testing.T) {
	r := NewRegistry(map[string][]string{"orders": {"order_items"}}, nil)
	c := newFilledCache("orders:1", "order_items:1", "invoices:1")
	r.Register("OrderService", c)

	assert.Equal(t, 3, r.InvalidateTable("orders", "order_items", "invoices", "orders", ""))
	assert.Equal(t, 0, c.Len())
}

func TestRegistry_RelationsFromFile(t *testing.T) {
	var relations map[string][]string
	testsupport.LoadFixtureYAML(t, testsupport.FixturePath("relations.yaml"), &relations)

	r := NewRegistry(relations, nil)
	c := newFilledCache("orders:1", "order_items:1", "invoices:1", "customers:1", "users:1")
	r.Register("OrderService", c)

	assert.Equal(t, 3, r.InvalidateTable("orders"))
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("customers:1")
	assert.True(t, ok, "customers depend on orders, not the other way round")
	assert.Equal(t, relations, r.Relations())
}

func TestRegistry_RegisterAndNames(t *testing.T) {
	r := NewRegistry(map[string][]string{}, nil)
	r.Register("b", newFilledCache())
	r.Register("a", newFilledCache())

	assert.Equal(t, []string{"a", "b"}, r.Names())

	_, ok := r.Lookup("a")
	assert.True(t, ok)

	r.Unregister("a")
	assert.Equal(t, []string{"b"}, r.Names())
	assert.Empty(t, r.Related("users"), "an explicit empty map replaces the defaults")
}

func TestRegistry_RelationsAreCopied(t *testing.T) {
	relations := map[string][]string{"users": {"user_sessions"}}
	r := NewRegistry(relations, nil)

	relations["users"][0] = "changed"
	got := r.Related("users")
	got[0] = "mutated"

	assert.Equal(t, []string{"user_sessions"}, r.Related("users"))
	assert.Equal(t, map[string][]string{"users": {"user_sessions"}}, r.Relations())
}

func TestDefaultRelations(t *testing.T) {
	assert.Equal(t,
		[]string{"user_investments", "stablecoin_balances", "user_sessions", "login_history"},
		DefaultRelations()["users"],
	)
}
