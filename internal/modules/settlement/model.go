// README: Ledger transactions and settlement plans.
package settlement

import (
	"fmt"
	"time"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type Kind string

const (
	KindEarning    Kind = "EARNING"
	KindCommission Kind = "COMMISSION"
	KindRevenue    Kind = "REVENUE"
	KindPayment    Kind = "PAYMENT"
	KindPayout     Kind = "PAYOUT"
)

type TxStatus string

const (
	TxCompleted TxStatus = "completed"
	TxPending   TxStatus = "pending"
)

var (
	ErrBadRequest          = fmt.Errorf("settlement: %w", types.ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("settlement: insufficient balance: %w", types.ErrValidation)
)

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID          types.ID    `json:"id"`
	UserID      types.ID    `json:"user_id"`
	Kind        Kind        `json:"kind"`
	Amount      types.Money `json:"amount"`
	Status      TxStatus    `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	Description string      `json:"description"`
	JobID       *types.ID   `json:"job_id,omitempty"`
}

type Rates struct {
	CommissionRate float64
	PartnerRate    float64
}

// Input is the frozen part of a job that settlement is allowed to read.
type Input struct {
	JobID     types.ID
	DriverID  types.ID
	Price     types.Money
	PartnerID *types.ID
	// PartnerRate overrides Rates.PartnerRate when the partner has its own rate.
	PartnerRate *float64
}

// Plan is everything a completion writes: ledger entries plus balance deltas.
type Plan struct {
	JobID              types.ID
	PlatformCommission types.Money
	DriverNet          types.Money
	PartnerEarnings    types.Money
	Transactions       []Transaction
	Deltas             []user.BalanceDelta
}
