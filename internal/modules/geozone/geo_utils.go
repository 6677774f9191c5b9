// Package geozone holds pure geographic computation helpers.
package geozone

import (
	"math"

	"transferhub/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// PointInPolygon reports whether p lies inside the closed ring described by
// polygon, using the even-odd ray-casting rule with lng as x and lat as y.
// Points exactly on an edge or vertex are classified consistently but
// without a guarantee for either side. Rings with fewer than three vertices
// never contain anything.
func PointInPolygon(p types.Point, polygon []types.Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}
	x, y := p.Lng, p.Lat
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := polygon[i].Lng, polygon[i].Lat
		xj, yj := polygon[j].Lng, polygon[j].Lat
		// strict on one endpoint, non-strict on the other: horizontal edges never count
		if (yi > y) != (yj > y) {
			xCross := (xj-xi)*(y-yi)/(yj-yi) + xi
			if x < xCross {
				inside = !inside
			}
		}
	}
	return inside
}
