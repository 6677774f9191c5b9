// README: Job aggregate, bids, disputes and the status flow.
package job

import (
	"fmt"
	"time"

	"transferhub/internal/modules/pricing"
	"transferhub/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusBidding   Status = "bidding"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusDisputed  Status = "disputed"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

var (
	ErrNotFound     = fmt.Errorf("job: %w", types.ErrNotFound)
	ErrBidNotFound  = fmt.Errorf("job: bid %w", types.ErrNotFound)
	ErrInvalidState = fmt.Errorf("job: %w", types.ErrInvalidTransition)
	ErrConflict     = fmt.Errorf("job: %w", types.ErrConflict)
	ErrBadRequest   = fmt.Errorf("job: %w", types.ErrValidation)
	ErrNotPaid      = fmt.Errorf("job: payment not confirmed: %w", types.ErrInvalidTransition)
)

type Address struct {
	Label string      `json:"label"`
	Point types.Point `json:"point"`
}

type Bid struct {
	ID         types.ID    `json:"id"`
	JobID      types.ID    `json:"job_id"`
	DriverID   types.ID    `json:"driver_id"`
	DriverName string      `json:"driver_name"`
	Amount     types.Money `json:"amount"`
	CreatedAt  time.Time   `json:"created_at"`
}

type Resolution string

const (
	ResolutionUpheld Resolution = "UPHELD"
	ResolutionRefund Resolution = "REFUND"
)

func (r Resolution) Valid() bool {
	return r == ResolutionUpheld || r == ResolutionRefund
}

type Dispute struct {
	Reason     string     `json:"reason"`
	OpenedBy   types.ID   `json:"opened_by"`
	OpenedAt   time.Time  `json:"opened_at"`
	Resolution Resolution `json:"resolution,omitempty"`
	Note       string     `json:"note,omitempty"`
	ResolvedBy *types.ID  `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type Job struct {
	ID       types.ID `json:"id"`
	ClientID types.ID `json:"client_id"`
	Pickup   Address  `json:"pickup"`
	// Dropoff is nil for hourly bookings.
	Dropoff     *Address         `json:"dropoff,omitempty"`
	BookedHours int              `json:"booked_hours,omitempty"`
	DistanceKm  *float64         `json:"distance_km,omitempty"`
	Category    pricing.Category `json:"category"`
	Passengers  int              `json:"passengers"`
	Luggage     int              `json:"luggage"`
	ScheduledAt time.Time        `json:"scheduled_at"`
	Urgent      bool             `json:"urgent"`

	Status        Status        `json:"status"`
	StatusVersion int           `json:"status_version"`
	Bids          []Bid         `json:"bids"`
	SelectedBidID *types.ID     `json:"selected_bid_id,omitempty"`
	Price         *types.Money  `json:"price,omitempty"`
	DriverID      *types.ID     `json:"driver_id,omitempty"`
	DriverName    string        `json:"driver_name,omitempty"`
	Payment       PaymentStatus `json:"payment_status"`
	PartnerID     *types.ID     `json:"partner_id,omitempty"`
	QuotedPrice   types.Money   `json:"quoted_price"`

	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
	CancelledBy  *types.ID  `json:"cancelled_by,omitempty"`
	Dispute      *Dispute   `json:"dispute,omitempty"`
}

func (j *Job) IsHourly() bool { return j.Dropoff == nil }

func (j *Job) IsOpen() bool {
	return j.Status == StatusPending || j.Status == StatusBidding
}

func (j *Job) AssignedTo(driverID types.ID) bool {
	return j.DriverID != nil && *j.DriverID == driverID
}

func (j *Job) HasBidFrom(driverID types.ID) bool {
	for _, b := range j.Bids {
		if b.DriverID == driverID {
			return true
		}
	}
	return false
}

func (j *Job) FindBid(id types.ID) (Bid, bool) {
	for _, b := range j.Bids {
		if b.ID == id {
			return b, true
		}
	}
	return Bid{}, false
}

// Event is one row of the audit trail.
type Event struct {
	ID         int64     `json:"id"`
	JobID      types.ID  `json:"job_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorType  string    `json:"actor_type"`
	ActorID    *types.ID `json:"actor_id,omitempty"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	ActorClient = "client"
	ActorDriver = "driver"
	ActorAdmin  = "admin"
	ActorSystem = "system"
)

type Filter struct {
	ClientID *types.ID
	DriverID *types.ID
	Statuses []Status
	Limit    int
}

// AllowedTransitions is the job status flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusBidding, StatusAccepted, StatusCancelled},
	StatusBidding:   {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusDisputed},
	StatusDisputed:  {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func cloneJob(j *Job) *Job {
	cp := *j
	cp.Bids = append([]Bid(nil), j.Bids...)
	if j.Dropoff != nil {
		d := *j.Dropoff
		cp.Dropoff = &d
	}
	if j.Dispute != nil {
		d := *j.Dispute
		cp.Dispute = &d
	}
	return &cp
}
