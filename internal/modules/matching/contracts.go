// README: Consumer-side contracts for the matching engine.
package matching

import (
	"context"

	"mealdrop/internal/maps"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/presence"
	"mealdrop/internal/types"
)

// PresenceIndex is the geo index of available couriers.
type PresenceIndex interface {
	NearestAvailable(ctx context.Context, origin types.Point, limit int, excluded map[types.ID]struct{}) ([]presence.Candidate, error)
}

// GeoService resolves addresses and road distances.
type GeoService interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
	RouteDistanceBetween(ctx context.Context, origin, dest types.Point) (maps.Route, error)
}

// OrderLoads exposes per-courier accepted-order counts for a restaurant.
type OrderLoads interface {
	AcceptedLoadByRestaurant(ctx context.Context, restaurantID types.ID) ([]order.CourierLoad, error)
}

// Directory resolves courier profiles.
type Directory interface {
	GetCourier(ctx context.Context, id types.ID) (*accounts.Courier, error)
}

// Liveness reports whether a courier currently holds a live connection.
type Liveness interface {
	IsConnected(courierID types.ID) bool
}
