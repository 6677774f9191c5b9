// README: In-memory job store; each conditional write is a critical section.
package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"transferhub/internal/modules/settlement"
	"transferhub/internal/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[types.ID]*Job
	events []Event
	ledger settlement.Ledger
	now    func() time.Time
}

// NewMemoryStore applies settlement plans through ledger while holding the
// store lock, so a failed Apply leaves the job accepted.
func NewMemoryStore(ledger settlement.Ledger) *MemoryStore {
	return &MemoryStore{jobs: make(map[types.ID]*Job), ledger: ledger, now: time.Now}
}

func (m *MemoryStore) Create(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return ErrConflict
	}
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(j), nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if f.ClientID != nil && j.ClientID != *f.ClientID {
			continue
		}
		if f.DriverID != nil && !j.AssignedTo(*f.DriverID) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
			continue
		}
		out = append(out, cloneJob(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendBid(_ context.Context, b Bid) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[b.JobID]
	if !ok {
		return false, ErrNotFound
	}
	if !j.IsOpen() {
		return false, ErrInvalidState
	}
	j.Bids = append(j.Bids, b)
	if j.Status != StatusPending {
		return false, nil
	}
	j.Status = StatusBidding
	j.StatusVersion++
	return true, nil
}

func (m *MemoryStore) Accept(_ context.Context, id types.ID, from Status, version int, bid Bid) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != from || j.StatusVersion != version || !j.IsOpen() || j.SelectedBidID != nil {
		return false, nil
	}
	now := m.now()
	bidID, driverID, price := bid.ID, bid.DriverID, bid.Amount
	j.Status = StatusAccepted
	j.StatusVersion++
	j.SelectedBidID = &bidID
	j.DriverID = &driverID
	j.DriverName = bid.DriverName
	j.Price = &price
	j.AcceptedAt = &now
	return true, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id types.ID, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != t.From || j.StatusVersion != t.Version {
		return false, nil
	}
	j.Status = t.To
	j.StatusVersion++
	if t.To == StatusCancelled {
		now := m.now()
		j.CancelledAt = &now
	}
	if t.CancelReason != nil {
		r := *t.CancelReason
		j.CancelReason = &r
	}
	if t.CancelledBy != nil {
		by := *t.CancelledBy
		j.CancelledBy = &by
	}
	if t.Dispute != nil {
		d := *t.Dispute
		j.Dispute = &d
	}
	return true, nil
}

func (m *MemoryStore) MarkPaid(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Payment == PaymentPaid {
		return false, nil
	}
	switch j.Status {
	case StatusAccepted, StatusCompleted, StatusDisputed:
	default:
		return false, nil
	}
	now := m.now()
	j.Payment = PaymentPaid
	j.PaidAt = &now
	return true, nil
}

func (m *MemoryStore) SetDistance(_ context.Context, id types.ID, km float64, quote types.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if !j.IsOpen() {
		return false, nil
	}
	j.DistanceKm = &km
	j.QuotedPrice = quote
	return true, nil
}

func (m *MemoryStore) Complete(ctx context.Context, id types.ID, version int, plan settlement.Plan) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, ErrNotFound
	}
	if j.Status != StatusAccepted || j.StatusVersion != version || j.Payment != PaymentPaid {
		return false, nil
	}
	if err := m.ledger.Apply(ctx, plan); err != nil {
		return false, err
	}
	now := m.now()
	j.Status = StatusCompleted
	j.StatusVersion++
	j.CompletedAt = &now
	return true, nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *e)
	return nil
}

func (m *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.JobID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
