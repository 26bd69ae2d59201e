// README: Consumer-side contracts for the dispatch orchestrator.
package dispatch

import (
	"context"
	"time"

	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/matching"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/presence"
	"mealdrop/internal/types"
)

// OrderLifecycle is the order state machine with its side effects.
type OrderLifecycle interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	Charge(ctx context.Context, orderID types.ID, methodRef string) error
	Assign(ctx context.Context, cmd order.AssignCommand) (*order.Order, error)
	Accept(ctx context.Context, cmd order.AcceptCommand) (*order.Order, error)
	PickUp(ctx context.Context, courierID types.ID) ([]order.Order, error)
	Deliver(ctx context.Context, cmd order.DeliverCommand) (*order.Order, error)
	Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error)
	OutstandingByCourier(ctx context.Context, courierID types.ID) ([]order.Order, error)
}

// Matcher selects couriers for a restaurant.
type Matcher interface {
	NearestCourier(ctx context.Context, restaurant *accounts.Restaurant, excluded map[types.ID]struct{}) (*matching.Match, error)
	SpareCapacityCourier(ctx context.Context, restaurantID types.ID) (types.ID, error)
}

// PresenceStore tracks available-courier positions and en-route breadcrumbs.
type PresenceStore interface {
	SetAvailable(ctx context.Context, courierID types.ID, pos types.Point) error
	RemoveAvailable(ctx context.Context, courierID types.ID) error
	AppendRouteSample(ctx context.Context, sample presence.RouteSample) error
	RouteSamplesSince(ctx context.Context, courierID types.ID, since time.Time) ([]presence.RouteSample, error)
	LatestRouteSample(ctx context.Context, courierID types.ID) (*presence.RouteSample, error)
	ClearRouteSamples(ctx context.Context, courierID types.ID) error
}

// AttemptStore records which couriers an order has been offered to.
type AttemptStore interface {
	Record(ctx context.Context, orderID, courierID types.ID) error
	ExcludedCouriers(ctx context.Context, orderID types.ID) (map[types.ID]struct{}, error)
	Clear(ctx context.Context, orderID types.ID) error
}

// Directory resolves restaurant profiles for reassignment.
type Directory interface {
	GetRestaurant(ctx context.Context, id types.ID) (*accounts.Restaurant, error)
}
