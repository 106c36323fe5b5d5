package investment

import (
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const Table = "user_investments"

const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

var (
	Statuses = []string{StatusPending, StatusActive, StatusClosed}
	Assets   = []string{"USDC", "USDT"}
)

// Investment is a user's position in a tokenized asset. Amount is kept as a
// normalized decimal string so no precision is lost on the way to NUMERIC.
type Investment struct {
	bun.BaseModel `bun:"table:user_investments,alias:ui"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID      uuid.UUID `bun:"user_id,type:uuid,notnull" json:"user_id"`
	AssetSymbol string    `bun:"asset_symbol,notnull" json:"asset_symbol"`
	Amount      string    `bun:"amount,type:numeric,notnull" json:"amount"`
	Status      string    `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func Handlers() repository.ModelHandlers[*Investment] {
	return repository.ModelHandlers[*Investment]{
		NewRecord: func() *Investment { return &Investment{} },
		GetID: func(i *Investment) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID:         func(i *Investment, id uuid.UUID) { i.ID = id },
		GetIdentifier: func() string { return "id" },
	}
}

// NewRepository returns the bun-backed investment repository.
func NewRepository(db *bun.DB) repository.Repository[*Investment] {
	return repository.NewRepository[*Investment](db, Handlers())
}
