package di

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/usdfinancial/service-base/config"
	"github.com/usdfinancial/service-base/pkg/testsupport"
	"github.com/usdfinancial/service-base/repositorycache"
)

type balance struct {
	ID     string
	Symbol string
	Amount string
}

func balanceID(b balance) string { return b.ID }

func seedBalances(n int) []balance {
	rows := make([]balance, n)
	for i := range rows {
		rows[i] = balance{ID: fmt.Sprintf("balance-%d", i), Symbol: "USDC", Amount: fmt.Sprintf("%d.00", i)}
	}
	return rows
}

func backendConfigs() map[string]config.Config {
	memory := sqliteConfig()

	sturdy := sqliteConfig()
	sturdy.CacheBackend = config.BackendSturdyc
	sturdy.Sturdyc.Capacity = 1000
	sturdy.Sturdyc.NumShards = 16
	sturdy.Sturdyc.EarlyRefresh = nil

	return map[string]config.Config{"memory": memory, "sturdyc": sturdy}
}

func newBalanceRepository(tb testing.TB, cfg config.Config, rows []balance) (*repositorycache.CachedRepository[balance], *testsupport.MemoryStore[balance]) {
	tb.Helper()
	c, err := NewContainer(context.Background(), cfg, WithLogger(zap.NewNop()))
	if err != nil {
		tb.Fatalf("NewContainer() error = %v", err)
	}
	tb.Cleanup(func() { c.Close() })

	s, err := c.NewService("BalanceService", "stablecoin_balances")
	if err != nil {
		tb.Fatalf("NewService() error = %v", err)
	}
	store := testsupport.NewMemoryStore(balanceID, rows...)
	return NewCachedRepository[balance](c, s, store), store
}

// TestConcurrentAccess reads and invalidates from many goroutines on both
// cache backends.
func TestConcurrentAccess(t *testing.T) {
	for name, cfg := range backendConfigs() {
		t.Run(name, func(t *testing.T) {
			repo, store := newBalanceRepository(t, cfg, seedBalances(100))
			ctx := context.Background()

			const workers = 50
			const opsPerWorker = 20

			var wg sync.WaitGroup
			errs := make(chan error, workers*opsPerWorker)

			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func(worker int) {
					defer wg.Done()
					for j := 0; j < opsPerWorker; j++ {
						id := fmt.Sprintf("balance-%d", (worker*opsPerWorker+j)%100)
						if _, err := repo.GetByID(ctx, id); err != nil {
							errs <- fmt.Errorf("worker %d op %d GetByID: %w", worker, j, err)
							continue
						}
						if j%5 == 0 {
							if _, _, err := repo.List(ctx); err != nil {
								errs <- fmt.Errorf("worker %d op %d List: %w", worker, j, err)
							}
						}
						if worker%10 == 0 && j == opsPerWorker/2 {
							repo.Invalidate()
						}
					}
				}(w)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Error(err)
			}

			total := workers * opsPerWorker
			calls := store.Calls("GetByID")
			if calls >= total {
				t.Errorf("expected caching to reduce GetByID calls: %d calls for %d reads", calls, total)
			}
			t.Logf("%s: %d reads reached the store %d times", name, total, calls)
		})
	}
}

func BenchmarkCachedGetByID(b *testing.B) {
	for name, cfg := range backendConfigs() {
		b.Run(name, func(b *testing.B) {
			repo, _ := newBalanceRepository(b, cfg, seedBalances(100))
			ctx := context.Background()

			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					if _, err := repo.GetByID(ctx, fmt.Sprintf("balance-%d", i%100)); err != nil {
						b.Fatal(err)
					}
					i++
				}
			})
		})
	}
}

func BenchmarkUncachedGetByID(b *testing.B) {
	store := testsupport.NewMemoryStore(balanceID, seedBalances(100)...)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := store.GetByID(ctx, fmt.Sprintf("balance-%d", i%100)); err != nil {
			b.Fatal(err)
		}
	}
}
