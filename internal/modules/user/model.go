// README: User directory records (clients, drivers, partner agencies, admins).
package user

import (
	"context"
	"fmt"

	"transferhub/internal/modules/geozone"
	"transferhub/internal/types"
)

type Role string

const (
	RoleClient Role = "client"
	RoleDriver Role = "driver"
	RoleAgency Role = "agency"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDriver, RoleAgency, RoleAdmin:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
)

var (
	ErrNotFound   = fmt.Errorf("user: %w", types.ErrNotFound)
	ErrBadRequest = fmt.Errorf("user: %w", types.ErrValidation)
)

type Vehicle struct {
	Category      string `json:"category"`
	MaxPassengers int    `json:"max_passengers"`
	MaxLuggage    int    `json:"max_luggage"`
	Plate         string `json:"plate,omitempty"`
}

type User struct {
	ID          types.ID
	Name        string
	Role        Role
	Status      Status
	Vehicles    []Vehicle
	Zones       []geozone.Zone
	Balance     types.Money
	Earnings    types.Money
	TripCount   int
	DeviceToken string
	// CommissionRate overrides the platform default partner rate for agencies.
	CommissionRate *float64
}

// MaxCapacity is the largest passenger count across the user's fleet.
func (u *User) MaxCapacity() int {
	max := 0
	for _, v := range u.Vehicles {
		if v.MaxPassengers > max {
			max = v.MaxPassengers
		}
	}
	return max
}

func (u *User) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("%w: id is required", ErrBadRequest)
	}
	if !u.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrBadRequest, u.Role)
	}
	for _, z := range u.Zones {
		if err := z.Validate(); err != nil {
			return err
		}
	}
	for i, v := range u.Vehicles {
		if v.MaxPassengers <= 0 {
			return fmt.Errorf("%w: vehicle %d max_passengers must be > 0", ErrBadRequest, i)
		}
	}
	if u.CommissionRate != nil && (*u.CommissionRate < 0 || *u.CommissionRate > 1) {
		return fmt.Errorf("%w: commission rate must be within [0,1]", ErrBadRequest)
	}
	return nil
}

// BalanceDelta is a signed change to a user's running totals.
type BalanceDelta struct {
	UserID   types.ID
	Balance  types.Money
	Earnings types.Money
	Trips    int
}

// Directory is the user lookup and balance-mutation surface the core depends on.
type Directory interface {
	Get(ctx context.Context, id types.ID) (*User, error)
	Upsert(ctx context.Context, u *User) error
	UpdateBalance(ctx context.Context, d BalanceDelta) error
	UpdateStatus(ctx context.Context, id types.ID, status Status) error
	ListByRole(ctx context.Context, role Role) ([]*User, error)
}
