// README: YAML user rosters used to provision accounts.
package user

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"transferhub/internal/modules/geozone"
	"transferhub/internal/types"
)

type rosterVehicle struct {
	Category      string `yaml:"category"`
	MaxPassengers int    `yaml:"max_passengers"`
	MaxLuggage    int    `yaml:"max_luggage"`
	Plate         string `yaml:"plate"`
}

type rosterUser struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	Role           Role            `yaml:"role"`
	Status         Status          `yaml:"status"`
	DeviceToken    string          `yaml:"device_token"`
	CommissionRate *float64        `yaml:"commission_rate"`
	Vehicles       []rosterVehicle `yaml:"vehicles"`
	Zones          []geozone.Zone  `yaml:"zones"`
}

type roster struct {
	Users []rosterUser `yaml:"users"`
}

// LoadRosterFile reads a YAML document of the form `users: [...]`. Users
// without a status are active. Every entry is validated.
func LoadRosterFile(path string) ([]*User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRoster(data)
}

func ParseRoster(data []byte) ([]*User, error) {
	var r roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: parse roster: %v", ErrBadRequest, err)
	}
	out := make([]*User, 0, len(r.Users))
	for i, ru := range r.Users {
		u := &User{
			ID:             types.ID(ru.ID),
			Name:           ru.Name,
			Role:           ru.Role,
			Status:         ru.Status,
			DeviceToken:    ru.DeviceToken,
			CommissionRate: ru.CommissionRate,
			Zones:          ru.Zones,
		}
		if u.Status == "" {
			u.Status = StatusActive
		}
		for _, v := range ru.Vehicles {
			u.Vehicles = append(u.Vehicles, Vehicle(v))
		}
		if err := u.Validate(); err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", i, err)
		}
		out = append(out, u)
	}
	return out, nil
}
