// README: Consumer-side contracts for the order lifecycle service.
package order

import (
	"context"
	"time"

	"mealdrop/internal/maps"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/types"
)

// CourierLoad is one courier's count of a restaurant's orders in a status.
type CourierLoad struct {
	CourierID types.ID
	Count     int
}

// Repository persists orders. UpdateStatus must be guarded by the expected
// prior status and version so concurrent transitions serialize per order.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, courierID *types.ID) (bool, error)
	SetPaymentIntent(ctx context.Context, id types.ID, intentID, methodRef string) error
	RecordDelivery(ctx context.Context, id types.ID, trace string, deliveredAt time.Time) error
	ListByCourierAndStatus(ctx context.Context, courierID types.ID, statuses ...Status) ([]Order, error)
	AcceptedLoadByRestaurant(ctx context.Context, restaurantID types.ID) ([]CourierLoad, error)
}

// GeoService provides road distance between two addresses.
type GeoService interface {
	RouteDistance(ctx context.Context, origin, dest string) (maps.Route, error)
}

// Pricer quotes the delivery fee for a road distance.
type Pricer interface {
	Quote(distanceMeters int) types.Money
}

// Directory resolves courier and restaurant profiles.
type Directory interface {
	GetCourier(ctx context.Context, id types.ID) (*accounts.Courier, error)
	GetRestaurant(ctx context.Context, id types.ID) (*accounts.Restaurant, error)
}
