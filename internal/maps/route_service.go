// README: Driving distance and duration from the Google Maps Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"transferhub/internal/types"
)

var ErrNoRoute = errors.New("maps: no route found")

// RouteService resolves driving routes between coordinates.
type RouteService struct {
	client *maps.Client
	region string
}

// NewRouteService creates a RouteService with the given API key. region is
// a ccTLD bias such as "pt"; empty means no bias.
func NewRouteService(apiKey, region string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, region: region}, nil
}

// Estimate is the first leg of the preferred driving route.
type Estimate struct {
	DistanceKm float64
	Duration   time.Duration
}

func (s *RouteService) TravelEstimate(ctx context.Context, from, to types.Point) (Estimate, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
		Region:      s.region,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Estimate{}, ErrNoRoute
	}
	leg := routes[0].Legs[0]
	return Estimate{DistanceKm: float64(leg.Distance.Meters) / 1000, Duration: leg.Duration}, nil
}

// DistanceKm satisfies the job service's route estimator.
func (s *RouteService) DistanceKm(ctx context.Context, from, to types.Point) (float64, error) {
	est, err := s.TravelEstimate(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return est.DistanceKm, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
