// README: Service zones declared by drivers.
package geozone

import (
	"fmt"

	"transferhub/internal/types"
)

var ErrInvalidZone = fmt.Errorf("zone: %w", types.ErrValidation)

// Zone is a named service area. A global zone has no polygon and matches
// every pickup point.
type Zone struct {
	Name    string        `json:"name" yaml:"name"`
	Global  bool          `json:"global,omitempty" yaml:"global,omitempty"`
	Polygon []types.Point `json:"polygon,omitempty" yaml:"polygon,omitempty"`
}

func (z Zone) Contains(p types.Point) bool {
	if z.Global {
		return true
	}
	return PointInPolygon(p, z.Polygon)
}

func (z Zone) Validate() error {
	if z.Global {
		return nil
	}
	if len(z.Polygon) < 3 {
		return fmt.Errorf("%w: %q needs at least 3 vertices, got %d", ErrInvalidZone, z.Name, len(z.Polygon))
	}
	for i, v := range z.Polygon {
		if !v.Valid() {
			return fmt.Errorf("%w: %q vertex %d out of range", ErrInvalidZone, z.Name, i)
		}
	}
	return nil
}

// AnyContains reports whether p falls in at least one zone. An empty zone
// list means the owner declared no restriction.
func AnyContains(zones []Zone, p types.Point) bool {
	if len(zones) == 0 {
		return true
	}
	for _, z := range zones {
		if z.Contains(p) {
			return true
		}
	}
	return false
}
