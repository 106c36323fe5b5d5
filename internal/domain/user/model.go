package user

import (
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const Table = "users"

// KYC states a user moves through.
const (
	KYCPending  = "pending"
	KYCVerified = "verified"
	KYCRejected = "rejected"
)

// KYCStatuses lists the accepted kyc_status values.
var KYCStatuses = []string{KYCPending, KYCVerified, KYCRejected}

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	WalletAddress string    `bun:"wallet_address,nullzero" json:"wallet_address,omitempty"`
	KYCStatus     string    `bun:"kyc_status,notnull" json:"kyc_status"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Handlers wires User into go-repository-bun.
func Handlers() repository.ModelHandlers[*User] {
	return repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID:         func(u *User, id uuid.UUID) { u.ID = id },
		GetIdentifier: func() string { return "email" },
	}
}

// NewRepository returns the bun-backed user repository.
func NewRepository(db *bun.DB) repository.Repository[*User] {
	return repository.NewRepository[*User](db, Handlers())
}
