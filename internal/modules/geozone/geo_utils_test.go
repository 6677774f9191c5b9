package geozone

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transferhub/internal/types"
)

// roughly the Lisbon city centre
var lisbon = []types.Point{
	{Lat: 38.70, Lng: -9.20},
	{Lat: 38.70, Lng: -9.10},
	{Lat: 38.76, Lng: -9.10},
	{Lat: 38.76, Lng: -9.20},
}

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{"same point", types.Point{Lat: 38.72, Lng: -9.14}, types.Point{Lat: 38.72, Lng: -9.14}, 0, 0.001},
		{"Lisbon to Porto (~274km)", types.Point{Lat: 38.7223, Lng: -9.1393}, types.Point{Lat: 41.1579, Lng: -8.6291}, 274, 5},
		{"New York to Los Angeles (~3944km)", types.Point{Lat: 40.7128, Lng: -74.0060}, types.Point{Lat: 34.0522, Lng: -118.2437}, 3944, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestPointInPolygon_CentroidInside(t *testing.T) {
	assert.True(t, PointInPolygon(centroid(lisbon), lisbon))
}

func TestPointInPolygon_FarOutside(t *testing.T) {
	assert.False(t, PointInPolygon(types.Point{Lat: 41.15, Lng: -8.62}, lisbon))
	assert.False(t, PointInPolygon(types.Point{Lat: -38.72, Lng: 9.14}, lisbon))
}

func TestPointInPolygon_Concave(t *testing.T) {
	// U shape opening north; the notch is outside.
	u := []types.Point{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 3}, {Lat: 3, Lng: 3}, {Lat: 3, Lng: 2},
		{Lat: 1, Lng: 2}, {Lat: 1, Lng: 1}, {Lat: 3, Lng: 1}, {Lat: 3, Lng: 0},
	}
	assert.True(t, PointInPolygon(types.Point{Lat: 2, Lng: 0.5}, u))
	assert.True(t, PointInPolygon(types.Point{Lat: 2, Lng: 2.5}, u))
	assert.False(t, PointInPolygon(types.Point{Lat: 2, Lng: 1.5}, u))
	assert.True(t, PointInPolygon(types.Point{Lat: 0.5, Lng: 1.5}, u))
}

func TestPointInPolygon_RayThroughHorizontalEdge(t *testing.T) {
	// the ray at lat=1 runs along the bottom edge of the notch; parity must hold
	u := []types.Point{
		{Lat: 0, Lng: 0}, {Lat: 0, Lng: 3}, {Lat: 3, Lng: 3}, {Lat: 3, Lng: 2},
		{Lat: 1, Lng: 2}, {Lat: 1, Lng: 1}, {Lat: 3, Lng: 1}, {Lat: 3, Lng: 0},
	}
	assert.True(t, PointInPolygon(types.Point{Lat: 1, Lng: 0.5}, u))
	assert.False(t, PointInPolygon(types.Point{Lat: 1, Lng: -0.5}, u))
}

func TestPointInPolygon_Degenerate(t *testing.T) {
	p := types.Point{Lat: 1, Lng: 1}
	assert.False(t, PointInPolygon(p, nil))
	assert.False(t, PointInPolygon(p, []types.Point{{Lat: 1, Lng: 1}}))
	assert.False(t, PointInPolygon(p, []types.Point{{Lat: 0, Lng: 0}, {Lat: 2, Lng: 2}}))
}

func TestZoneContainsAndValidate(t *testing.T) {
	global := Zone{Name: "anywhere", Global: true}
	assert.True(t, global.Contains(types.Point{Lat: -33.9, Lng: 151.2}))
	require.NoError(t, global.Validate())

	city := Zone{Name: "lisbon", Polygon: lisbon}
	require.NoError(t, city.Validate())
	assert.True(t, city.Contains(types.Point{Lat: 38.72, Lng: -9.14}))

	bad := Zone{Name: "line", Polygon: lisbon[:2]}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestAnyContains(t *testing.T) {
	pickup := types.Point{Lat: 41.15, Lng: -8.62}
	assert.True(t, AnyContains(nil, pickup), "no zones means unrestricted")
	assert.False(t, AnyContains([]Zone{{Name: "lisbon", Polygon: lisbon}}, pickup))
	assert.True(t, AnyContains([]Zone{{Name: "lisbon", Polygon: lisbon}, {Name: "all", Global: true}}, pickup))
}

// centroid is the vertex average of a ring; only meaningful for convex shapes.
func centroid(polygon []types.Point) types.Point {
	var c types.Point
	for _, v := range polygon {
		c.Lat += v.Lat
		c.Lng += v.Lng
	}
	c.Lat /= float64(len(polygon))
	c.Lng /= float64(len(polygon))
	return c
}
