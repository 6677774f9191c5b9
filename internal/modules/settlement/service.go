// README: Settlement computes commission splits and records payouts.
package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

// Compute builds the settlement plan for a completed job. It is pure: the
// caller applies the plan in the same unit of work that completes the job.
//
// Partner commission is additive. It is not taken out of the driver net or
// the platform commission, so total payout can exceed the platform margin
// when a partner referred the job.
func Compute(in Input, rates Rates, platformAccount types.ID, now time.Time) (Plan, error) {
	if in.JobID == "" || in.DriverID == "" {
		return Plan{}, fmt.Errorf("%w: job and driver are required", ErrBadRequest)
	}
	if in.Price.Amount <= 0 {
		return Plan{}, fmt.Errorf("%w: job %s has no agreed price", ErrBadRequest, in.JobID)
	}
	if rates.CommissionRate < 0 || rates.CommissionRate > 1 {
		return Plan{}, fmt.Errorf("%w: commission rate %v", ErrBadRequest, rates.CommissionRate)
	}

	jobID := in.JobID
	commission := in.Price.MulRate(rates.CommissionRate)
	net := in.Price.Sub(commission)

	plan := Plan{
		JobID:              in.JobID,
		PlatformCommission: commission,
		DriverNet:          net,
		PartnerEarnings:    types.Money{Currency: in.Price.Currency},
	}

	plan.Deltas = append(plan.Deltas, user.BalanceDelta{UserID: in.DriverID, Balance: net, Earnings: net, Trips: 1})
	plan.Transactions = append(plan.Transactions, Transaction{
		ID:          types.NewID(),
		UserID:      in.DriverID,
		Kind:        KindEarning,
		Amount:      net,
		Status:      TxCompleted,
		CreatedAt:   now,
		Description: fmt.Sprintf("Earnings for job %s", in.JobID),
		JobID:       &jobID,
	})

	if in.PartnerID != nil && *in.PartnerID != "" {
		rate := rates.PartnerRate
		if in.PartnerRate != nil {
			rate = *in.PartnerRate
		}
		if rate > 0 {
			earned := in.Price.MulRate(rate)
			plan.PartnerEarnings = earned
			plan.Deltas = append(plan.Deltas, user.BalanceDelta{UserID: *in.PartnerID, Balance: earned, Earnings: earned})
			plan.Transactions = append(plan.Transactions, Transaction{
				ID:          types.NewID(),
				UserID:      *in.PartnerID,
				Kind:        KindCommission,
				Amount:      earned,
				Status:      TxCompleted,
				CreatedAt:   now,
				Description: fmt.Sprintf("Partner commission for job %s", in.JobID),
				JobID:       &jobID,
			})
		}
	}

	plan.Transactions = append(plan.Transactions, Transaction{
		ID:          types.NewID(),
		UserID:      platformAccount,
		Kind:        KindRevenue,
		Amount:      commission,
		Status:      TxCompleted,
		CreatedAt:   now,
		Description: fmt.Sprintf("Platform commission for job %s", in.JobID),
		JobID:       &jobID,
	})
	return plan, nil
}

// Ledger is the append-only transaction log. Apply writes a plan's
// transactions and balance deltas as one unit.
type Ledger interface {
	Apply(ctx context.Context, plan Plan) error
	Debit(ctx context.Context, tx Transaction) error
	ListByUser(ctx context.Context, userID types.ID) ([]Transaction, error)
	ListByJob(ctx context.Context, jobID types.ID) ([]Transaction, error)
}

type Service struct {
	ledger Ledger
	users  user.Directory
	logger *slog.Logger
	now    func() time.Time
}

func NewService(ledger Ledger, users user.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, users: users, logger: logger, now: time.Now}
}

type PayoutCommand struct {
	UserID    types.ID
	Amount    types.Money
	Reference string
}

// Payout moves money out of a user's running balance.
func (s *Service) Payout(ctx context.Context, cmd PayoutCommand) (Transaction, error) {
	if cmd.UserID == "" || cmd.Amount.Amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: payout needs a user and a positive amount", ErrBadRequest)
	}
	u, err := s.users.Get(ctx, cmd.UserID)
	if err != nil {
		return Transaction{}, err
	}
	if u.Balance.Amount < cmd.Amount.Amount {
		return Transaction{}, ErrInsufficientBalance
	}
	desc := "Payout"
	if cmd.Reference != "" {
		desc = "Payout " + cmd.Reference
	}
	tx := Transaction{
		ID:          types.NewID(),
		UserID:      cmd.UserID,
		Kind:        KindPayout,
		Amount:      cmd.Amount,
		Status:      TxCompleted,
		CreatedAt:   s.now(),
		Description: desc,
	}
	if err := s.ledger.Debit(ctx, tx); err != nil {
		return Transaction{}, err
	}
	s.logger.Info("payout recorded",
		slog.String("user_id", string(cmd.UserID)),
		slog.Int64("amount", cmd.Amount.Amount),
	)
	return tx, nil
}

func (s *Service) History(ctx context.Context, userID types.ID) ([]Transaction, error) {
	return s.ledger.ListByUser(ctx, userID)
}

func (s *Service) JobTransactions(ctx context.Context, jobID types.ID) ([]Transaction, error) {
	return s.ledger.ListByJob(ctx, jobID)
}
