// README: Geo service adapter over the Google Maps API (geocoding, route distance, trace encoding).
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"mealdrop/internal/types"
)

var (
	// ErrNotFound means the address could not be geocoded.
	ErrNotFound = errors.New("address not found")
	// ErrNoRoute means no drivable path exists between the two points.
	ErrNoRoute = errors.New("no route between points")
)

// Route is the road distance and travel time between two places.
type Route struct {
	DistanceMeters int
	Duration       time.Duration
}

// GeoService wraps the Google Maps client. It holds no state beyond the
// client and is safe for concurrent use.
type GeoService struct {
	client *maps.Client
}

func NewGeoService(apiKey string) (*GeoService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GeoService{client: client}, nil
}

// Geocode resolves a street address to coordinates.
func (s *GeoService) Geocode(ctx context.Context, address string) (types.Point, error) {
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	if len(results) == 0 {
		return types.Point{}, ErrNotFound
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}

// RouteDistance returns the driving distance and duration from origin to dest.
func (s *GeoService) RouteDistance(ctx context.Context, origin, dest string) (Route, error) {
	resp, err := s.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{dest},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsImperial,
	})
	if err != nil {
		return Route{}, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Route{}, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Route{}, ErrNoRoute
	}
	return Route{DistanceMeters: el.Distance.Meters, Duration: el.Duration}, nil
}

// RouteDistanceBetween is RouteDistance for raw coordinates.
func (s *GeoService) RouteDistanceBetween(ctx context.Context, origin, dest types.Point) (Route, error) {
	return s.RouteDistance(ctx, formatPoint(origin), formatPoint(dest))
}

// EncodeTrace encodes a sequence of visited coordinates as a Google polyline.
func EncodeTrace(points []types.Point) string {
	if len(points) == 0 {
		return ""
	}
	path := make([]maps.LatLng, len(points))
	for i, p := range points {
		path[i] = maps.LatLng{Lat: p.Lat, Lng: p.Lng}
	}
	return maps.Encode(path)
}

func formatPoint(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
