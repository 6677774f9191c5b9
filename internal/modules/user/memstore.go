// README: In-memory user directory for tests and single-process runs.
package user

import (
	"context"
	"sort"
	"sync"

	"transferhub/internal/types"
)

type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[types.ID]*User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[types.ID]*User)}
}

func (m *MemoryDirectory) Get(_ context.Context, id types.ID) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *MemoryDirectory) Upsert(_ context.Context, u *User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneUser(u)
	if cp.Status == "" {
		cp.Status = StatusActive
	}
	if prev, ok := m.users[u.ID]; ok {
		cp.Balance, cp.Earnings, cp.TripCount = prev.Balance, prev.Earnings, prev.TripCount
	}
	m.users[u.ID] = cp
	return nil
}

func (m *MemoryDirectory) UpdateBalance(_ context.Context, d BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(d)
}

// ApplyAll applies every delta or none of them.
func (m *MemoryDirectory) ApplyAll(_ context.Context, deltas []BalanceDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range deltas {
		if _, ok := m.users[d.UserID]; !ok {
			return ErrNotFound
		}
	}
	for _, d := range deltas {
		_ = m.applyLocked(d)
	}
	return nil
}

func (m *MemoryDirectory) applyLocked(d BalanceDelta) error {
	u, ok := m.users[d.UserID]
	if !ok {
		return ErrNotFound
	}
	u.Balance = u.Balance.Add(d.Balance)
	u.Earnings = u.Earnings.Add(d.Earnings)
	u.TripCount += d.Trips
	return nil
}

func (m *MemoryDirectory) UpdateStatus(_ context.Context, id types.ID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	return nil
}

func (m *MemoryDirectory) ListByRole(_ context.Context, role Role) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Vehicles = append([]Vehicle(nil), u.Vehicles...)
	cp.Zones = append(cp.Zones[:0:0], u.Zones...)
	if u.CommissionRate != nil {
		r := *u.CommissionRate
		cp.CommissionRate = &r
	}
	return &cp
}
