// Package investment is the user_investments table service.
package investment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/repositorycache"
	"github.com/usdfinancial/service-base/service"
	"github.com/usdfinancial/service-base/serviceerr"
	"github.com/usdfinancial/service-base/validate"
)

const totalQuery = `SELECT COALESCE(SUM(amount), 0) AS total FROM user_investments WHERE user_id = ? AND status <> 'closed'`

// Service owns the user_investments table. Amounts are validated and
// normalized before they reach a transaction.
type Service struct {
	*service.BaseService

	repo    *repositorycache.CachedRepository[*Investment]
	backend cache.CacheService
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRepositoryCache stores repository reads in c instead of the service
// cache. c must be registered with the service's Registry so that commits
// clear it.
func WithRepositoryCache(c cache.CacheService) Option {
	return func(s *Service) {
		if c != nil {
			s.backend = c
		}
	}
}

// NewService builds a Service on base. store is usually NewRepository(db).
func NewService(base *service.BaseService, store repositorycache.Store[*Investment], opts ...Option) *Service {
	s := &Service{
		BaseService: base,
		backend:     base.Cache(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.repo = repositorycache.New[*Investment](store, s.backend,
		repositorycache.WithTable(base.Table()),
		repositorycache.WithInvalidator(base),
	)
	return s
}

// CreateInput holds the fields accepted by Create. Amount may be a string or
// any numeric type. Status defaults to pending.
type CreateInput struct {
	UserID      string `json:"user_id"`
	AssetSymbol string `json:"asset_symbol"`
	Amount      any    `json:"amount"`
	Status      string `json:"status,omitempty"`
}

// Create opens a new investment for a user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Investment, error) {
	const op = "createInvestment"

	if err := validate.RequireUUID(in.UserID, "user_id"); err != nil {
		return nil, s.HandleError(err, op)
	}
	if err := validate.RequireEnum(in.AssetSymbol, Assets, "asset_symbol"); err != nil {
		return nil, s.HandleError(err, op)
	}
	amount, err := validate.RequireDecimal(in.Amount, "amount", validate.Positive())
	if err != nil {
		return nil, s.HandleError(err, op)
	}
	status := in.Status
	if status == "" {
		status = StatusPending
	}
	if err := validate.RequireEnum(status, Statuses, "status"); err != nil {
		return nil, s.HandleError(err, op)
	}

	now := s.now().UTC()
	record := &Investment{
		ID:          uuid.New(),
		UserID:      uuid.MustParse(in.UserID),
		AssetSymbol: in.AssetSymbol,
		Amount:      amount,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return service.WithTransaction(ctx, s.BaseService, func(ctx context.Context, tx bun.IDB) (*Investment, error) {
		return s.repo.CreateTx(ctx, tx, record)
	})
}

// Get returns the investment with id.
func (s *Service) Get(ctx context.Context, id string) (*Investment, error) {
	const op = "getInvestment"
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.HandleError(err, op)
	}
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.HandleError(err, op)
	}
	return inv, nil
}

// ListByUser returns every investment of a user, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Investment, int, error) {
	const op = "listInvestmentsByUser"
	if err := validate.RequireUUID(userID, "user_id"); err != nil {
		return nil, 0, s.HandleError(err, op)
	}

	ctx = repositorycache.WithCacheKey(ctx, "byUser", userID)
	rows, total, err := s.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.user_id = ?", userID).Order("created_at DESC")
	})
	if err != nil {
		return nil, 0, s.HandleError(err, op)
	}
	return rows, total, nil
}

// TotalByUser sums the amounts of a user's open investments.
func (s *Service) TotalByUser(ctx context.Context, userID string) (string, error) {
	const op = "totalInvestedByUser"
	if err := validate.RequireUUID(userID, "user_id"); err != nil {
		return "", s.HandleError(err, op)
	}

	return service.Cached(ctx, s.BaseService, op, func(ctx context.Context) (string, error) {
		var total string
		if err := s.DB().NewRaw(totalQuery, userID).Scan(ctx, &total); err != nil {
			return "", err
		}
		return validate.RequireDecimal(total, "total")
	}, userID)
}

// Close marks an investment closed. Closing a closed investment is a
// validation error.
func (s *Service) Close(ctx context.Context, id string) (*Investment, error) {
	const op = "closeInvestment"
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.HandleError(err, op)
	}

	return service.WithTransaction(ctx, s.BaseService, func(ctx context.Context, tx bun.IDB) (*Investment, error) {
		inv, err := s.repo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if inv.Status == StatusClosed {
			return nil, serviceerr.New(serviceerr.KindValidation, "Investment is already closed").
				WithDetail("id", id)
		}
		inv.Status = StatusClosed
		inv.UpdatedAt = s.now().UTC()
		return s.repo.UpdateTx(ctx, tx, inv)
	})
}
