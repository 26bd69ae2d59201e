// README: Matching engine: two-phase nearest-courier selection and spare-capacity reuse.
package matching

import (
	"context"
	"math"

	"mealdrop/internal/logx"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/types"
)

// defaultCandidatePoolSize bounds the number of expensive routing calls per
// match: the geo index prunes to this many couriers by straight-line distance
// before the accurate re-rank.
const defaultCandidatePoolSize = 5

// Match is the selected courier plus its last known coordinates.
type Match struct {
	Courier  *accounts.Courier
	Position types.Point
}

type Service struct {
	index     PresenceIndex
	geo       GeoService
	loads     OrderLoads
	directory Directory
	liveness  Liveness
	poolSize  int
	log       logx.Logger
}

func NewService(index PresenceIndex, geo GeoService, loads OrderLoads, directory Directory, liveness Liveness, poolSize int, log logx.Logger) *Service {
	if poolSize <= 0 {
		poolSize = defaultCandidatePoolSize
	}
	return &Service{
		index:     index,
		geo:       geo,
		loads:     loads,
		directory: directory,
		liveness:  liveness,
		poolSize:  poolSize,
		log:       log,
	}
}

// NearestCourier selects the best available courier for the restaurant,
// skipping excluded couriers. Returns nil when no candidate exists.
//
// Phase one asks the geo index for the closest candidates by straight-line
// distance; phase two re-ranks them by true road distance. Ties keep the
// first candidate encountered.
func (s *Service) NearestCourier(ctx context.Context, restaurant *accounts.Restaurant, excluded map[types.ID]struct{}) (*Match, error) {
	origin, err := s.geo.Geocode(ctx, restaurant.Address())
	if err != nil {
		return nil, err
	}

	candidates, err := s.index.NearestAvailable(ctx, origin, s.poolSize, excluded)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	if len(candidates) > 1 {
		bestDistance := math.MaxInt
		ranked := false
		for _, cand := range candidates {
			route, err := s.geo.RouteDistanceBetween(ctx, origin, cand.Position)
			if err != nil {
				// A candidate we cannot route to is not a match failure;
				// drop it and rank the rest.
				s.log.Warn("route lookup for candidate failed", "courier_id", cand.CourierID, "err", err)
				continue
			}
			if route.DistanceMeters < bestDistance {
				best = cand
				bestDistance = route.DistanceMeters
				ranked = true
			}
		}
		if !ranked {
			// Every route call failed; fall back to the straight-line nearest.
			best = candidates[0]
		}
	}

	courier, err := s.directory.GetCourier(ctx, best.CourierID)
	if err != nil {
		return nil, err
	}
	return &Match{Courier: courier, Position: best.Position}, nil
}

// SpareCapacityCourier picks a courier already carrying the restaurant's
// accepted orders who can take one more (fewer than two) and is reachable.
// Liveness takes priority over list order. Returns "" when none qualifies.
func (s *Service) SpareCapacityCourier(ctx context.Context, restaurantID types.ID) (types.ID, error) {
	loads, err := s.loads.AcceptedLoadByRestaurant(ctx, restaurantID)
	if err != nil {
		return "", err
	}
	for _, l := range loads {
		if l.Count >= 2 {
			continue
		}
		if !s.liveness.IsConnected(l.CourierID) {
			continue
		}
		return l.CourierID, nil
	}
	return "", nil
}
