// Package user is the users table service.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/usdfinancial/service-base/cache"
	"github.com/usdfinancial/service-base/repositorycache"
	"github.com/usdfinancial/service-base/service"
	"github.com/usdfinancial/service-base/validate"
)

// Service owns the users table. Reads go through the service cache and
// writes run in retried transactions.
type Service struct {
	*service.BaseService

	repo    *repositorycache.CachedRepository[*User]
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
func NewService(base *service.BaseService, store repositorycache.Store[*User], opts ...Option) *Service {
	s := &Service{
		BaseService: base,
		backend:     base.Cache(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.repo = repositorycache.New[*User](store, s.backend,
		repositorycache.WithTable(base.Table()),
		repositorycache.WithInvalidator(base),
	)
	return s
}

// CreateInput holds the fields accepted by Create. KYCStatus defaults to
// pending.
type CreateInput struct {
	Email         string `json:"email"`
	WalletAddress string `json:"wallet_address,omitempty"`
	KYCStatus     string `json:"kyc_status,omitempty"`
}

// Create validates in and inserts a new user.
func (s *Service) Create(ctx context.Context, in CreateInput) (*User, error) {
	const op = "createUser"

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.RequireFields(map[string]any{"email": email}, "email"); err != nil {
		return nil, s.HandleError(err, op)
	}
	if in.WalletAddress != "" {
		if err := validate.RequireAddress(in.WalletAddress, "wallet_address"); err != nil {
			return nil, s.HandleError(err, op)
		}
	}
	status := in.KYCStatus
	if status == "" {
		status = KYCPending
	}
	if err := validate.RequireEnum(status, KYCStatuses, "kyc_status"); err != nil {
		return nil, s.HandleError(err, op)
	}

	now := s.now().UTC()
	record := &User{
		ID:            uuid.New(),
		Email:         email,
		WalletAddress: in.WalletAddress,
		KYCStatus:     status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	return service.WithTransaction(ctx, s.BaseService, func(ctx context.Context, tx bun.IDB) (*User, error) {
		return s.repo.CreateTx(ctx, tx, record)
	})
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	const op = "getUser"
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.HandleError(err, op)
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.HandleError(err, op)
	}
	return u, nil
}

// ListByKYCStatus returns the users in status.
func (s *Service) ListByKYCStatus(ctx context.Context, status string) ([]*User, int, error) {
	const op = "listUsersByKycStatus"
	if err := validate.RequireEnum(status, KYCStatuses, "kyc_status"); err != nil {
		return nil, 0, s.HandleError(err, op)
	}

	ctx = repositorycache.WithCacheKey(ctx, "byKycStatus", status)
	users, total, err := s.repo.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.kyc_status = ?", status)
	})
	if err != nil {
		return nil, 0, s.HandleError(err, op)
	}
	return users, total, nil
}

// UpdateKYCStatus moves the user to status.
func (s *Service) UpdateKYCStatus(ctx context.Context, id, status string) (*User, error) {
	const op = "updateKycStatus"
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.HandleError(err, op)
	}
	if err := validate.RequireEnum(status, KYCStatuses, "kyc_status"); err != nil {
		return nil, s.HandleError(err, op)
	}
	return s.update(ctx, id, func(u *User) { u.KYCStatus = status })
}

// UpdateWallet sets the user's wallet address.
func (s *Service) UpdateWallet(ctx context.Context, id, address string) (*User, error) {
	const op = "updateWallet"
	if err := validate.RequireUUID(id, "id"); err != nil {
		return nil, s.HandleError(err, op)
	}
	if err := validate.RequireAddress(address, "wallet_address"); err != nil {
		return nil, s.HandleError(err, op)
	}
	return s.update(ctx, id, func(u *User) { u.WalletAddress = address })
}

func (s *Service) update(ctx context.Context, id string, apply func(*User)) (*User, error) {
	return service.WithTransaction(ctx, s.BaseService, func(ctx context.Context, tx bun.IDB) (*User, error) {
		u, err := s.repo.GetByIDTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		apply(u)
		u.UpdatedAt = s.now().UTC()
		return s.repo.UpdateTx(ctx, tx, u)
	})
}
