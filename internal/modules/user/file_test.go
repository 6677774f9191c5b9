package user

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferhub/internal/types"
)

func TestParseRoster(t *testing.T) {
	doc := []byte(`
users:
  - id: d1
    name: Ana
    role: driver
    vehicles:
      - {category: van, max_passengers: 8, max_luggage: 8}
    zones:
      - name: lisbon
        polygon:
          - {lat: 38.69, lng: -9.23}
          - {lat: 38.69, lng: -9.09}
          - {lat: 38.80, lng: -9.09}
  - id: agency
    role: agency
    status: pending
    commission_rate: 0.12
`)
	users, err := ParseRoster(doc)
	require.NoError(t, err)
	require.Len(t, users, 2)

	d1 := users[0]
	assert.Equal(t, types.ID("d1"), d1.ID)
	assert.Equal(t, StatusActive, d1.Status)
	assert.Equal(t, 8, d1.MaxCapacity())
	require.Len(t, d1.Zones, 1)
	assert.Len(t, d1.Zones[0].Polygon, 3)

	agency := users[1]
	assert.Equal(t, StatusPending, agency.Status)
	require.NotNil(t, agency.CommissionRate)
	assert.InDelta(t, 0.12, *agency.CommissionRate, 1e-9)
}

func TestParseRosterRejectsInvalidEntries(t *testing.T) {
	for name, doc := range map[string]string{
		"bad role":  "users:\n  - {id: x, role: pilot}\n",
		"no id":     "users:\n  - {role: client}\n",
		"bad rate":  "users:\n  - {id: a, role: agency, commission_rate: 1.5}\n",
		"not yaml":  "users: [",
		"zero seat": "users:\n  - {id: d, role: driver, vehicles: [{category: van, max_passengers: 0}]}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRoster([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation), err)
		})
	}
}
