// README: Bid ledger: append-only bids and the single accept transition.
package job

import (
	"context"
	"fmt"
	"log/slog"

	"transferhub/internal/modules/events"
	"transferhub/internal/modules/notify"
	"transferhub/internal/modules/user"
	"transferhub/internal/observability"
	"transferhub/internal/types"
)

type PlaceBidCommand struct {
	JobID    types.ID
	DriverID types.ID
	Amount   types.Money
}

type AcceptBidCommand struct {
	JobID     types.ID
	BidID     types.ID
	ActorType string
	ActorID   types.ID
}

// PlaceBid appends a bid. Bids never conflict with each other and earlier
// bids from the same driver stay live.
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (Bid, error) {
	if cmd.JobID == "" || cmd.DriverID == "" {
		return Bid{}, fmt.Errorf("%w: job and driver are required", ErrBadRequest)
	}
	if cmd.Amount.Amount <= 0 {
		return Bid{}, fmt.Errorf("%w: bid amount must be > 0", ErrBadRequest)
	}
	driver, err := s.users.Get(ctx, cmd.DriverID)
	if err != nil {
		return Bid{}, err
	}
	if driver.Role != user.RoleDriver && driver.Role != user.RoleAgency {
		return Bid{}, fmt.Errorf("%w: %s users cannot bid", ErrBadRequest, driver.Role)
	}
	if driver.Status != user.StatusActive {
		return Bid{}, fmt.Errorf("%w: driver %s is %s", ErrBadRequest, driver.ID, driver.Status)
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return Bid{}, err
	}
	if !j.IsOpen() {
		return Bid{}, ErrInvalidState
	}

	amount := cmd.Amount
	if amount.Currency == "" {
		amount.Currency = j.QuotedPrice.Currency
	}
	if amount.Currency != j.QuotedPrice.Currency {
		return Bid{}, fmt.Errorf("%w: bid currency %s does not match job currency %s", ErrBadRequest, amount.Currency, j.QuotedPrice.Currency)
	}
	b := Bid{
		ID:         types.NewID(),
		JobID:      j.ID,
		DriverID:   driver.ID,
		DriverName: driver.Name,
		Amount:     amount,
		CreatedAt:  s.now(),
	}
	advanced, err := s.store.AppendBid(ctx, b)
	if err != nil {
		return Bid{}, err
	}
	observability.BidsPlaced.Inc()
	if advanced {
		observability.Transitions.WithLabelValues(string(StatusPending), string(StatusBidding)).Inc()
		s.appendEvent(ctx, j.ID, StatusPending, StatusBidding, ActorDriver, &b.DriverID, "")
	}
	s.publish(ctx, events.Event{
		Type:    events.BidPlaced,
		JobID:   j.ID,
		ActorID: b.DriverID,
		Attrs:   map[string]string{"bid_id": string(b.ID), "amount": b.Amount.String()},
	})
	s.notify(ctx, notify.Notification{
		UserID:   j.ClientID,
		Title:    "New bid",
		Message:  fmt.Sprintf("%s offered %s", b.DriverName, b.Amount),
		Severity: notify.SeverityInfo,
		JobID:    j.ID,
	})
	s.logger.Info("bid placed",
		slog.String("job_id", string(j.ID)),
		slog.String("bid_id", string(b.ID)),
		slog.String("driver_id", string(b.DriverID)),
		slog.Int64("amount", b.Amount.Amount),
	)
	return b, nil
}

// AcceptBid freezes the bid's amount and driver onto the job. At most one
// caller wins. Every loser gets ErrConflict, whether it lost the CAS or read
// the job after the winner committed.
func (s *Service) AcceptBid(ctx context.Context, cmd AcceptBidCommand) (*Job, error) {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	bid, ok := j.FindBid(cmd.BidID)
	if !ok {
		return nil, ErrBidNotFound
	}
	if j.Status == StatusAccepted && j.SelectedBidID != nil {
		return nil, s.conflict("accept")
	}
	if !CanTransition(j.Status, StatusAccepted) || j.SelectedBidID != nil {
		return nil, ErrInvalidState
	}
	won, err := s.store.Accept(ctx, j.ID, j.Status, j.StatusVersion, bid)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.conflict("accept")
	}

	var actor *types.ID
	if cmd.ActorID != "" {
		actor = &cmd.ActorID
	}
	actorType := cmd.ActorType
	if actorType == "" {
		actorType = ActorClient
	}
	s.transitioned(ctx, j, StatusAccepted, actorType, actor, "bid "+string(bid.ID), events.BidAccepted)
	s.notify(ctx, notify.Notification{
		UserID:   bid.DriverID,
		Title:    "Bid accepted",
		Message:  fmt.Sprintf("Your bid of %s was accepted", bid.Amount),
		Severity: notify.SeveritySuccess,
		JobID:    j.ID,
	})
	s.notify(ctx, notify.Notification{
		Role:     user.RoleAdmin,
		Title:    "Job accepted",
		Message:  fmt.Sprintf("%s accepted at %s by %s", j.ID, bid.Amount, bid.DriverName),
		Severity: notify.SeverityInfo,
		JobID:    j.ID,
	})
	return s.store.Get(ctx, j.ID)
}
