// README: Job service implements the lifecycle transitions, settlement on completion and disputes.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"transferhub/internal/modules/events"
	"transferhub/internal/modules/geozone"
	"transferhub/internal/modules/notify"
	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/settlement"
	"transferhub/internal/modules/user"
	"transferhub/internal/observability"
	"transferhub/internal/types"
)

type Pricer interface {
	Snapshot() pricing.Config
	Estimate(ctx context.Context, distanceKm float64, category pricing.Category) (pricing.Quote, error)
}

// RouteEstimator resolves driving distance between two points.
type RouteEstimator interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

type Deps struct {
	Store    Store
	Pricing  Pricer
	Users    user.Directory
	Notifier notify.Sink
	Events   events.Publisher
	// Router is optional; straight-line distance is used without it.
	Router            RouteEstimator
	Logger            *slog.Logger
	PlatformAccountID types.ID
}

type Service struct {
	store    Store
	pricing  Pricer
	users    user.Directory
	notifier notify.Sink
	events   events.Publisher
	router   RouteEstimator
	logger   *slog.Logger
	platform types.ID
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		pricing:  d.Pricing,
		users:    d.Users,
		notifier: d.Notifier,
		events:   d.Events,
		router:   d.Router,
		logger:   d.Logger,
		platform: d.PlatformAccountID,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.LogSink{Logger: s.logger}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.platform == "" {
		s.platform = "platform"
	}
	return s
}

type CreateCommand struct {
	ClientID    types.ID
	Pickup      Address
	Dropoff     *Address
	BookedHours int
	DistanceKm  *float64
	Category    pricing.Category
	Passengers  int
	Luggage     int
	ScheduledAt time.Time
	Urgent      bool
	PartnerID   *types.ID
}

type SetDistanceCommand struct {
	JobID      types.ID
	DistanceKm float64
}

type CancelCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

type CompleteCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   types.ID
}

func (c CreateCommand) validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrBadRequest)
	case !c.Category.Valid():
		return fmt.Errorf("%w: unknown vehicle category %q", ErrBadRequest, c.Category)
	case c.Passengers <= 0:
		return fmt.Errorf("%w: passengers must be > 0", ErrBadRequest)
	case c.Luggage < 0:
		return fmt.Errorf("%w: luggage must be >= 0", ErrBadRequest)
	case !c.Pickup.Point.Valid():
		return fmt.Errorf("%w: invalid pickup coordinates", ErrBadRequest)
	case c.Dropoff == nil && c.BookedHours <= 0:
		return fmt.Errorf("%w: hourly bookings need booked hours", ErrBadRequest)
	case c.Dropoff != nil && !c.Dropoff.Point.Valid():
		return fmt.Errorf("%w: invalid dropoff coordinates", ErrBadRequest)
	case c.DistanceKm != nil && (*c.DistanceKm < 0 || math.IsNaN(*c.DistanceKm)):
		return fmt.Errorf("%w: distance must be >= 0", ErrBadRequest)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Job, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.Get(ctx, cmd.ClientID); err != nil {
		return nil, err
	}
	if cmd.PartnerID != nil {
		p, err := s.users.Get(ctx, *cmd.PartnerID)
		if err != nil {
			return nil, err
		}
		if p.Role != user.RoleAgency {
			return nil, fmt.Errorf("%w: partner %s is not an agency", ErrBadRequest, p.ID)
		}
	}

	var distance *float64
	hours := 0
	if cmd.Dropoff != nil {
		km := s.resolveDistance(ctx, cmd.Pickup.Point, cmd.Dropoff.Point, cmd.DistanceKm)
		distance = &km
	} else {
		hours = cmd.BookedHours
	}
	quote, err := s.quote(ctx, distance, cmd.Category, hours)
	if err != nil {
		return nil, err
	}

	now := s.now()
	scheduled := cmd.ScheduledAt
	if scheduled.IsZero() {
		scheduled = now
	}
	j := &Job{
		ID:            types.NewID(),
		ClientID:      cmd.ClientID,
		Pickup:        cmd.Pickup,
		Dropoff:       cmd.Dropoff,
		BookedHours:   hours,
		DistanceKm:    distance,
		Category:      cmd.Category,
		Passengers:    cmd.Passengers,
		Luggage:       cmd.Luggage,
		ScheduledAt:   scheduled,
		Urgent:        cmd.Urgent,
		Status:        StatusPending,
		StatusVersion: 0,
		Payment:       PaymentUnpaid,
		PartnerID:     cmd.PartnerID,
		QuotedPrice:   quote,
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	observability.JobsCreated.WithLabelValues(string(j.Category)).Inc()
	s.appendEvent(ctx, j.ID, StatusNone, StatusPending, ActorClient, &cmd.ClientID, "")
	s.publish(ctx, events.Event{Type: events.JobCreated, JobID: j.ID, To: string(StatusPending), ActorID: cmd.ClientID})
	s.notify(ctx, notify.Notification{
		Role:     user.RoleAdmin,
		Title:    "New transfer request",
		Message:  fmt.Sprintf("%s job for %d passengers, floor %s", j.Category, j.Passengers, j.QuotedPrice),
		Severity: notify.SeverityInfo,
		JobID:    j.ID,
	})
	s.logger.Info("job created",
		slog.String("job_id", string(j.ID)),
		slog.String("category", string(j.Category)),
		slog.Int64("quoted", quote.Amount),
	)
	return j, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Job, error) {
	return s.store.List(ctx, f)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

// SetDistance records a late route distance and re-quotes the floor price.
// Only open jobs accept it; terms are frozen once a bid is accepted.
func (s *Service) SetDistance(ctx context.Context, cmd SetDistanceCommand) (*Job, error) {
	if cmd.DistanceKm < 0 || math.IsNaN(cmd.DistanceKm) || math.IsInf(cmd.DistanceKm, 0) {
		return nil, fmt.Errorf("%w: distance must be >= 0", ErrBadRequest)
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if !j.IsOpen() {
		return nil, ErrInvalidState
	}
	if j.IsHourly() {
		return nil, fmt.Errorf("%w: hourly bookings have no route distance", ErrBadRequest)
	}
	km := cmd.DistanceKm
	quote, err := s.quote(ctx, &km, j.Category, 0)
	if err != nil {
		return nil, err
	}
	ok, err := s.store.SetDistance(ctx, j.ID, km, quote)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict("set_distance")
	}
	s.publish(ctx, events.Event{
		Type:  events.DistanceUpdated,
		JobID: j.ID,
		Attrs: map[string]string{"distance_km": fmt.Sprintf("%.2f", km), "quoted": quote.String()},
	})
	return s.store.Get(ctx, j.ID)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Job, error) {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	switch j.Status {
	case StatusPending, StatusBidding, StatusAccepted:
	default:
		return nil, ErrInvalidState
	}
	var reason *string
	if cmd.Reason != "" {
		reason = &cmd.Reason
	}
	var by *types.ID
	if cmd.ActorID != "" {
		by = &cmd.ActorID
	}
	ok, err := s.store.UpdateStatus(ctx, j.ID, Transition{
		From:         j.Status,
		To:           StatusCancelled,
		Version:      j.StatusVersion,
		CancelReason: reason,
		CancelledBy:  by,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict("cancel")
	}
	s.transitioned(ctx, j, StatusCancelled, cmd.ActorType, by, cmd.Reason, events.JobCancelled)

	msg := "The transfer was cancelled"
	if cmd.Reason != "" {
		msg += ": " + cmd.Reason
	}
	if j.ClientID != cmd.ActorID {
		s.notify(ctx, notify.Notification{UserID: j.ClientID, Title: "Job cancelled", Message: msg, Severity: notify.SeverityWarning, JobID: j.ID})
	}
	if j.DriverID != nil && *j.DriverID != cmd.ActorID {
		s.notify(ctx, notify.Notification{UserID: *j.DriverID, Title: "Job cancelled", Message: msg, Severity: notify.SeverityWarning, JobID: j.ID})
	}
	return s.store.Get(ctx, j.ID)
}

// MarkPaid records the external payment confirmation. The status is left
// unchanged and repeat confirmations are no-ops.
func (s *Service) MarkPaid(ctx context.Context, id types.ID) (*Job, error) {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch j.Status {
	case StatusAccepted, StatusCompleted, StatusDisputed:
	default:
		return nil, ErrInvalidState
	}
	if j.Payment == PaymentPaid {
		return j, nil
	}
	ok, err := s.store.MarkPaid(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur.Payment == PaymentPaid {
			return cur, nil
		}
		return nil, s.conflict("mark_paid")
	}
	s.appendEvent(ctx, j.ID, j.Status, j.Status, ActorSystem, nil, "payment confirmed")
	s.publish(ctx, events.Event{Type: events.JobPaid, JobID: j.ID, From: string(j.Status), To: string(j.Status)})
	if j.DriverID != nil {
		s.notify(ctx, notify.Notification{UserID: *j.DriverID, Title: "Payment confirmed", Message: "You can proceed with the transfer", Severity: notify.SeveritySuccess, JobID: j.ID})
	}
	return s.store.Get(ctx, id)
}

// Complete moves an accepted, paid job to completed and settles it in the
// same unit of work. A second call fails with ErrInvalidState and settles nothing.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Job, error) {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if j.Status != StatusAccepted {
		return nil, ErrInvalidState
	}
	if j.Payment != PaymentPaid {
		return nil, ErrNotPaid
	}
	if j.Price == nil || j.DriverID == nil {
		return nil, fmt.Errorf("%w: accepted job %s has no frozen terms", ErrInvalidState, j.ID)
	}

	cfg := s.pricing.Snapshot()
	in := settlement.Input{
		JobID:     j.ID,
		DriverID:  *j.DriverID,
		Price:     *j.Price,
		PartnerID: j.PartnerID,
	}
	if j.PartnerID != nil {
		partner, err := s.users.Get(ctx, *j.PartnerID)
		if err != nil {
			return nil, err
		}
		in.PartnerRate = partner.CommissionRate
	}
	plan, err := settlement.Compute(in,
		settlement.Rates{CommissionRate: cfg.CommissionRate, PartnerRate: cfg.PartnerCommissionRate},
		s.platform, s.now())
	if err != nil {
		return nil, err
	}

	ok, err := s.store.Complete(ctx, j.ID, j.StatusVersion, plan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.conflict("complete")
	}
	observability.Settlements.Inc()
	observability.SettledAmount.Observe(j.Price.Float())

	var actor *types.ID
	if cmd.ActorID != "" {
		actor = &cmd.ActorID
	}
	s.transitioned(ctx, j, StatusCompleted, cmd.ActorType, actor, "", events.JobCompleted)
	s.notify(ctx, notify.Notification{
		UserID:   *j.DriverID,
		Title:    "Job completed",
		Message:  fmt.Sprintf("%s added to your balance", plan.DriverNet),
		Severity: notify.SeveritySuccess,
		JobID:    j.ID,
	})
	if j.PartnerID != nil && !plan.PartnerEarnings.IsZero() {
		s.notify(ctx, notify.Notification{
			UserID:   *j.PartnerID,
			Title:    "Commission earned",
			Message:  fmt.Sprintf("%s commission for a referred transfer", plan.PartnerEarnings),
			Severity: notify.SeveritySuccess,
			JobID:    j.ID,
		})
	}
	s.logger.Info("job settled",
		slog.String("job_id", string(j.ID)),
		slog.Int64("price", j.Price.Amount),
		slog.Int64("driver_net", plan.DriverNet.Amount),
		slog.Int64("commission", plan.PlatformCommission.Amount),
		slog.Int64("partner", plan.PartnerEarnings.Amount),
	)
	return s.store.Get(ctx, j.ID)
}

func (s *Service) quote(ctx context.Context, distanceKm *float64, cat pricing.Category, hours int) (types.Money, error) {
	km := 0.0
	if distanceKm != nil {
		km = *distanceKm
	}
	q, err := s.pricing.Estimate(ctx, km, cat)
	if err != nil {
		return types.Money{}, err
	}
	m := q.Money()
	if hours > 0 {
		m.Amount *= int64(hours)
	}
	return m, nil
}

func (s *Service) resolveDistance(ctx context.Context, from, to types.Point, given *float64) float64 {
	if given != nil {
		return *given
	}
	if s.router != nil {
		km, err := s.router.DistanceKm(ctx, from, to)
		if err == nil {
			return km
		}
		s.logger.Warn("route distance unavailable, using straight line", slog.String("err", err.Error()))
	}
	return geozone.HaversineKm(from, to)
}

func (s *Service) transitioned(ctx context.Context, j *Job, to Status, actorType string, actorID *types.ID, note string, typ events.Type) {
	observability.Transitions.WithLabelValues(string(j.Status), string(to)).Inc()
	s.appendEvent(ctx, j.ID, j.Status, to, actorType, actorID, note)
	e := events.Event{Type: typ, JobID: j.ID, From: string(j.Status), To: string(to)}
	if actorID != nil {
		e.ActorID = *actorID
	}
	if note != "" {
		e.Attrs = map[string]string{"note": note}
	}
	s.publish(ctx, e)
	s.logger.Info("job transition",
		slog.String("job_id", string(j.ID)),
		slog.String("from", string(j.Status)),
		slog.String("to", string(to)),
	)
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorType string, actorID *types.ID, note string) {
	if actorType == "" {
		actorType = ActorSystem
	}
	err := s.store.AppendEvent(ctx, &Event{
		JobID:      id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		Note:       note,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("append job event failed", slog.String("job_id", string(id)), slog.String("err", err.Error()))
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = s.now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		observability.PublishFailures.Inc()
		s.logger.Warn("publish event failed", slog.String("type", string(e.Type)), slog.String("err", err.Error()))
	}
}

func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now().UTC()
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		observability.NotifyFailures.Inc()
		s.logger.Warn("notification failed",
			slog.String("title", n.Title),
			slog.String("job_id", string(n.JobID)),
			slog.String("err", err.Error()),
		)
	}
}

func (s *Service) conflict(op string) error {
	observability.CASConflicts.WithLabelValues(op).Inc()
	return ErrConflict
}

// IsConflict reports whether err is a lost conditional write the caller may retry.
func IsConflict(err error) bool {
	return errors.Is(err, types.ErrConflict)
}
