// README: Post-completion disputes and arbiter resolution.
package job

import (
	"context"
	"fmt"

	"transferhub/internal/modules/events"
	"transferhub/internal/modules/notify"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type OpenDisputeCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

type ResolveDisputeCommand struct {
	JobID      types.ID
	ArbiterID  types.ID
	Resolution Resolution
	Note       string
}

func (s *Service) OpenDispute(ctx context.Context, cmd OpenDisputeCommand) (*Job, error) {
	if cmd.Reason == "" || cmd.ActorID == "" {
		return nil, fmt.Errorf("%w: dispute needs a reason and an opener", ErrBadRequest)
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(j.Status, StatusDisputed) {
		return nil, ErrInvalidState
	}
	d := &Dispute{Reason: cmd.Reason, OpenedBy: cmd.ActorID, OpenedAt: s.now()}
	ok, err := s.store.UpdateStatus(ctx, j.ID, Transition{
		From:    j.Status,
		To:      StatusDisputed,
		Version: j.StatusVersion,
		Dispute: d,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict("open_dispute")
	}
	s.transitioned(ctx, j, StatusDisputed, cmd.ActorType, &cmd.ActorID, cmd.Reason, events.DisputeOpened)
	s.notify(ctx, notify.Notification{
		Role:     user.RoleAdmin,
		Title:    "Dispute opened",
		Message:  fmt.Sprintf("Job %s: %s", j.ID, cmd.Reason),
		Severity: notify.SeverityWarning,
		JobID:    j.ID,
	})
	return s.store.Get(ctx, j.ID)
}

// ResolveDispute maps the arbiter's resolution to a status: UPHELD returns
// the job to completed, REFUND cancels it. Posted settlement transactions
// are not reversed; a refund raises an admin notification instead.
func (s *Service) ResolveDispute(ctx context.Context, cmd ResolveDisputeCommand) (*Job, error) {
	if !cmd.Resolution.Valid() {
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrBadRequest, cmd.Resolution)
	}
	if cmd.ArbiterID == "" {
		return nil, fmt.Errorf("%w: arbiter is required", ErrBadRequest)
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusDisputed || j.Dispute == nil {
		return nil, ErrInvalidState
	}

	to := StatusCompleted
	var reason *string
	if cmd.Resolution == ResolutionRefund {
		to = StatusCancelled
		r := "dispute refund"
		reason = &r
	}
	now := s.now()
	d := *j.Dispute
	d.Resolution = cmd.Resolution
	d.Note = cmd.Note
	d.ResolvedBy = &cmd.ArbiterID
	d.ResolvedAt = &now

	t := Transition{From: StatusDisputed, To: to, Version: j.StatusVersion, Dispute: &d, CancelReason: reason}
	if to == StatusCancelled {
		t.CancelledBy = &cmd.ArbiterID
	}
	ok, err := s.store.UpdateStatus(ctx, j.ID, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict("resolve_dispute")
	}
	s.transitioned(ctx, j, to, ActorAdmin, &cmd.ArbiterID, string(cmd.Resolution), events.DisputeResolved)

	msg := fmt.Sprintf("Dispute resolved: %s", cmd.Resolution)
	if cmd.Note != "" {
		msg += " (" + cmd.Note + ")"
	}
	s.notify(ctx, notify.Notification{UserID: j.ClientID, Title: "Dispute resolved", Message: msg, Severity: notify.SeverityInfo, JobID: j.ID})
	if j.DriverID != nil {
		s.notify(ctx, notify.Notification{UserID: *j.DriverID, Title: "Dispute resolved", Message: msg, Severity: notify.SeverityInfo, JobID: j.ID})
	}
	if cmd.Resolution == ResolutionRefund {
		s.notify(ctx, notify.Notification{
			Role:     user.RoleAdmin,
			Title:    "Refund needs ledger review",
			Message:  fmt.Sprintf("Job %s was refunded after settlement; transactions were left in place", j.ID),
			Severity: notify.SeverityWarning,
			JobID:    j.ID,
		})
	}
	return s.store.Get(ctx, j.ID)
}
