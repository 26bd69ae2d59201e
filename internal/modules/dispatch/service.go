// README: Dispatch orchestrator: courier sessions, payment-triggered assignment, and the reassignment/timeout supervisor.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mealdrop/internal/config"
	"mealdrop/internal/logx"
	"mealdrop/internal/maps"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/presence"
	"mealdrop/internal/modules/registry"
	"mealdrop/internal/types"
)

var (
	ErrNoCourierAvailable = errors.New("no courier available")
	ErrCourierUnreachable = errors.New("courier connection is not live")
	ErrNotConnected       = registry.ErrNotConnected
)

// Offer is the payload pushed with an assignment offer.
type Offer struct {
	Order      *order.Order         `json:"order"`
	Restaurant *accounts.Restaurant `json:"restaurant"`
}

type Service struct {
	orders    OrderLifecycle
	matcher   Matcher
	registry  *registry.Registry
	presence  PresenceStore
	attempts  AttemptStore
	directory Directory
	cfg       config.DispatchConfig
	log       logx.Logger
}

func NewService(
	orders OrderLifecycle,
	matcher Matcher,
	reg *registry.Registry,
	presenceStore PresenceStore,
	attempts AttemptStore,
	directory Directory,
	cfg config.DispatchConfig,
	log logx.Logger,
) *Service {
	return &Service{
		orders:    orders,
		matcher:   matcher,
		registry:  reg,
		presence:  presenceStore,
		attempts:  attempts,
		directory: directory,
		cfg:       cfg,
		log:       log,
	}
}

// Registry exposes the connection registry for liveness checks.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Connect registers a courier session and restores any in-flight work: an
// ASSIGNED order re-arms the pending-acceptance cycle, an ACCEPTED or
// PICKEDUP order puts the courier straight back into delivery.
func (s *Service) Connect(ctx context.Context, courierID types.ID, conn registry.Conn) error {
	s.registry.Connect(courierID, conn)

	outstanding, err := s.orders.OutstandingByCourier(ctx, courierID)
	if err != nil {
		return err
	}
	for i := range outstanding {
		o := &outstanding[i]
		switch o.Status {
		case order.StatusAssigned:
			return s.armPendingAcceptance(ctx, o, courierID)
		case order.StatusAccepted:
			s.registry.SetStatus(courierID, registry.StatusInDelivery)
			return s.registry.Push(courierID, CodeOrderAccepted, o)
		case order.StatusPickedUp:
			s.registry.SetStatus(courierID, registry.StatusInDelivery)
			return s.registry.Push(courierID, CodeInDelivery, o)
		}
	}
	// Nothing in flight: any breadcrumbs from a previous session are stale.
	return s.presence.ClearRouteSamples(ctx, courierID)
}

// Disconnect tears down the courier's session. A pending offer is treated as
// timeout-equivalent and reassigned, unless the order already moved to another
// courier before the disconnect fired.
func (s *Service) Disconnect(ctx context.Context, courierID types.ID, conn registry.Conn) {
	snap, ok := s.registry.Disconnect(courierID, conn)
	if !ok {
		return
	}
	if err := s.presence.RemoveAvailable(ctx, courierID); err != nil {
		s.log.Warn("remove available sample", "courier_id", courierID, "err", err)
	}

	switch snap.Status {
	case registry.StatusPendingAcceptance:
		if snap.PendingOrderID != "" {
			s.reassign(ctx, snap.PendingOrderID, courierID)
		}
		if err := s.presence.ClearRouteSamples(ctx, courierID); err != nil {
			s.log.Warn("clear route samples", "courier_id", courierID, "err", err)
		}
	case registry.StatusWaiting:
		if err := s.presence.ClearRouteSamples(ctx, courierID); err != nil {
			s.log.Warn("clear route samples", "courier_id", courierID, "err", err)
		}
	}
	// IN_DELIVERY breadcrumbs are kept: the courier may reconnect mid-job and
	// the trace must survive the gap.
	s.log.Info("courier disconnected", "courier_id", courierID, "status", snap.Status)
}

// UpdateLocation records a courier position sample according to the courier's
// dispatch status: available index while WAITING, en-route breadcrumbs while
// on a job.
func (s *Service) UpdateLocation(ctx context.Context, courierID types.ID, pos types.Point) error {
	snap, ok := s.registry.Get(courierID)
	if !ok {
		return ErrNotConnected
	}
	switch snap.Status {
	case registry.StatusWaiting:
		return s.presence.SetAvailable(ctx, courierID, pos)
	default:
		return s.presence.AppendRouteSample(ctx, presence.RouteSample{
			CourierID:  courierID,
			Position:   pos,
			RecordedAt: time.Now().UTC(),
		})
	}
}

// AssignAfterPayment charges the order and hands it to a courier. A courier
// already delivering for the same restaurant with spare capacity is reused
// and auto-accepts; otherwise the nearest available courier gets a
// pending-acceptance offer. No courier at all cancels the order.
func (s *Service) AssignAfterPayment(ctx context.Context, orderID types.ID, methodRef string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusCreated {
		return nil, order.ErrStaleTransition
	}

	spareCourier, err := s.matcher.SpareCapacityCourier(ctx, o.RestaurantID)
	if err != nil {
		return nil, err
	}

	var courierID types.ID
	if spareCourier != "" {
		courierID = spareCourier
	} else {
		restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
		if err != nil {
			return nil, err
		}
		match, err := s.matcher.NearestCourier(ctx, restaurant, nil)
		if err != nil {
			return nil, err
		}
		if match == nil {
			s.cancelOrder(ctx, orderID, "no courier available")
			return nil, ErrNoCourierAvailable
		}
		if !s.registry.IsConnected(match.Courier.ID) {
			return nil, ErrCourierUnreachable
		}
		courierID = match.Courier.ID
	}

	if err := s.orders.Charge(ctx, orderID, methodRef); err != nil {
		if errors.Is(err, order.ErrPaymentFailed) {
			s.cancelOrder(ctx, orderID, "payment failed")
		}
		return nil, err
	}

	assigned, err := s.orders.Assign(ctx, order.AssignCommand{OrderID: orderID, CourierID: courierID})
	if err != nil {
		return nil, err
	}

	if spareCourier != "" {
		// Second-order optimization: the courier is already working this
		// restaurant, no explicit acceptance round-trip is needed.
		accepted, err := s.orders.Accept(ctx, order.AcceptCommand{OrderID: orderID, CourierID: courierID})
		if err != nil {
			return nil, err
		}
		if err := s.registry.Push(courierID, CodeOrderAccepted, accepted); err != nil {
			s.log.Warn("push auto-accepted order", "courier_id", courierID, "err", err)
		}
		return accepted, nil
	}

	if err := s.armPendingAcceptance(ctx, assigned, courierID); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, orderID)
}

// Accept handles an explicit courier acceptance. The order-side optimistic
// update is the arbiter against a concurrently firing timeout.
func (s *Service) Accept(ctx context.Context, courierID, orderID types.ID) (*order.Order, error) {
	accepted, err := s.orders.Accept(ctx, order.AcceptCommand{OrderID: orderID, CourierID: courierID})
	if err != nil {
		return nil, err
	}
	if !s.registry.EndPendingAcceptance(courierID, orderID, registry.StatusInDelivery) {
		// A timeout won the presence CAS but lost the order row. The courier
		// carries an accepted order, so the WAITING the timer left behind
		// must not stand or matching would hand the courier more work.
		s.registry.SetStatus(courierID, registry.StatusInDelivery)
	}
	if err := s.attempts.Clear(ctx, orderID); err != nil {
		s.log.Warn("clear assignment attempts", "order_id", orderID, "err", err)
	}
	if err := s.registry.Push(courierID, CodeOrderAccepted, accepted); err != nil {
		s.log.Warn("push accepted order", "courier_id", courierID, "err", err)
	}
	return accepted, nil
}

// Reject releases the courier and reoffers the order elsewhere. The presence
// CAS makes an explicit reject and a firing timeout mutually exclusive.
func (s *Service) Reject(ctx context.Context, courierID, orderID types.ID) error {
	if !s.registry.EndPendingAcceptance(courierID, orderID, registry.StatusWaiting) {
		return order.ErrStaleTransition
	}
	s.releaseAndReassign(ctx, orderID, courierID, CodeOfferRejected, "Order rejected")
	return nil
}

// PickUp moves all of the courier's accepted orders into delivery.
func (s *Service) PickUp(ctx context.Context, courierID types.ID) ([]order.Order, error) {
	picked, err := s.orders.PickUp(ctx, courierID)
	if err != nil {
		return nil, err
	}
	s.registry.SetStatus(courierID, registry.StatusInDelivery)
	if err := s.registry.Push(courierID, CodeInDelivery, picked); err != nil {
		s.log.Warn("push picked-up orders", "courier_id", courierID, "err", err)
	}
	return picked, nil
}

// Deliver completes one order: reconstructs the trace from en-route samples
// recorded since acceptance, settles the courier payout, and releases the
// courier to WAITING unless another picked-up order remains.
func (s *Service) Deliver(ctx context.Context, courierID, orderID types.ID) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPickedUp || o.CourierID == nil || *o.CourierID != courierID {
		return nil, order.ErrStaleTransition
	}

	since := o.CreatedAt
	if o.AcceptedAt != nil {
		since = *o.AcceptedAt
	}
	samples, err := s.presence.RouteSamplesSince(ctx, courierID, since)
	if err != nil {
		return nil, err
	}
	points := make([]types.Point, len(samples))
	for i, sm := range samples {
		points[i] = sm.Position
	}

	delivered, err := s.orders.Deliver(ctx, order.DeliverCommand{
		OrderID:   orderID,
		CourierID: courierID,
		Trace:     maps.EncodeTrace(points),
	})
	if err != nil {
		return nil, err
	}

	remaining, err := s.orders.OutstandingByCourier(ctx, courierID)
	if err != nil {
		return nil, err
	}
	stillDelivering := false
	for _, r := range remaining {
		if r.Status == order.StatusPickedUp {
			stillDelivering = true
			break
		}
	}
	if !stillDelivering {
		s.registry.SetStatus(courierID, registry.StatusWaiting)
		if err := s.presence.ClearRouteSamples(ctx, courierID); err != nil {
			s.log.Warn("clear route samples", "courier_id", courierID, "err", err)
		}
	}
	if err := s.registry.Push(courierID, CodeOrderDelivered, delivered); err != nil {
		s.log.Warn("push delivered order", "courier_id", courierID, "err", err)
	}
	return delivered, nil
}

// Cancel is the customer-facing cancellation. An outstanding offer is
// withdrawn first, killing the acceptance timer and releasing the courier to
// WAITING, then the order is cancelled and its attempt history purged.
func (s *Service) Cancel(ctx context.Context, orderID types.ID, reason string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusAssigned && o.CourierID != nil {
		courierID := *o.CourierID
		if s.registry.EndPendingAcceptance(courierID, orderID, registry.StatusWaiting) {
			if err := s.presence.ClearRouteSamples(ctx, courierID); err != nil {
				s.log.Warn("clear route samples", "courier_id", courierID, "err", err)
			}
			if err := s.registry.Push(courierID, CodeSucceed, map[string]any{
				"message":  "Order cancelled",
				"order_id": orderID,
			}); err != nil {
				s.log.Warn("push cancellation notice", "courier_id", courierID, "err", err)
			}
		}
	}

	cancelled, err := s.orders.Cancel(ctx, order.CancelCommand{OrderID: orderID, Reason: reason})
	if err != nil {
		return nil, err
	}
	if err := s.attempts.Clear(ctx, orderID); err != nil {
		s.log.Warn("clear assignment attempts", "order_id", orderID, "err", err)
	}
	return cancelled, nil
}

// Tracking is the customer-facing view of an order in flight.
type Tracking struct {
	Order           *order.Order `json:"order"`
	CourierPosition *types.Point `json:"courier_position,omitempty"`
}

// Track returns the order together with the courier's most recent position
// while the delivery is en route.
func (s *Service) Track(ctx context.Context, orderID types.ID) (*Tracking, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	t := &Tracking{Order: o}
	if o.CourierID == nil {
		return t, nil
	}
	switch o.Status {
	case order.StatusAccepted, order.StatusPickedUp:
		sample, err := s.presence.LatestRouteSample(ctx, *o.CourierID)
		if err != nil {
			s.log.Warn("load latest route sample", "courier_id", *o.CourierID, "err", err)
			return t, nil
		}
		if sample != nil {
			pos := sample.Position
			t.CourierPosition = &pos
		}
	}
	return t, nil
}

// armPendingAcceptance starts one offer cycle: the courier leaves the
// available index, the attempt is recorded for the exclusion set, the
// acceptance timer is armed, and the offer is pushed.
func (s *Service) armPendingAcceptance(ctx context.Context, o *order.Order, courierID types.ID) error {
	if err := s.presence.RemoveAvailable(ctx, courierID); err != nil {
		s.log.Warn("remove available sample", "courier_id", courierID, "err", err)
	}
	if err := s.attempts.Record(ctx, o.ID, courierID); err != nil {
		return fmt.Errorf("record assignment attempt: %w", err)
	}

	orderID := o.ID
	err := s.registry.BeginPendingAcceptance(courierID, orderID, s.cfg.AcceptanceTimeout, func() {
		s.handleTimeout(orderID, courierID)
	})
	if err != nil {
		// The connection vanished between selection and arming; move on to
		// the next candidate. The recorded attempt excludes this courier.
		s.log.Warn("arm pending acceptance failed", "courier_id", courierID, "order_id", orderID, "err", err)
		s.reassign(ctx, orderID, courierID)
		return nil
	}

	restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		s.log.Warn("load restaurant for offer", "order_id", orderID, "err", err)
	}
	if err := s.registry.Push(courierID, CodeOrderOffered, Offer{Order: o, Restaurant: restaurant}); err != nil {
		s.log.Warn("push offer", "courier_id", courierID, "err", err)
	}
	s.log.Info("offer armed", "order_id", orderID, "courier_id", courierID, "timeout", s.cfg.AcceptanceTimeout)
	return nil
}

// handleTimeout fires when a courier sits on an offer past the deadline. The
// presence CAS loses against an explicit accept/reject that got there first,
// making a late timer a no-op.
func (s *Service) handleTimeout(orderID, courierID types.ID) {
	ctx := context.Background()
	if !s.registry.EndPendingAcceptance(courierID, orderID, registry.StatusWaiting) {
		return
	}
	s.log.Info("offer timed out", "order_id", orderID, "courier_id", courierID)
	s.releaseAndReassign(ctx, orderID, courierID, CodeOfferTimedOut, "Order timeout")
}

// releaseAndReassign reoffers the order elsewhere, cleans up the released
// courier, and tells it what happened.
func (s *Service) releaseAndReassign(ctx context.Context, orderID, courierID types.ID, code int, message string) {
	s.reassign(ctx, orderID, courierID)
	if err := s.presence.ClearRouteSamples(ctx, courierID); err != nil {
		s.log.Warn("clear route samples", "courier_id", courierID, "err", err)
	}
	if err := s.registry.Push(courierID, code, map[string]any{
		"message": message,
		"order_id": orderID,
	}); err != nil {
		s.log.Warn("push release notice", "courier_id", courierID, "err", err)
	}
}

// reassign offers the order to the best courier never offered it before, or
// cancels when nobody is left. It no-ops if the order is no longer ASSIGNED
// to prevCourier (a disconnect can trail an already-completed reassignment).
func (s *Service) reassign(ctx context.Context, orderID, prevCourierID types.ID) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		s.log.Warn("reassign: load order", "order_id", orderID, "err", err)
		return
	}
	if o.Status != order.StatusAssigned || o.CourierID == nil || *o.CourierID != prevCourierID {
		return
	}

	excluded, err := s.attempts.ExcludedCouriers(ctx, orderID)
	if err != nil {
		s.log.Error("reassign: load exclusion set", "order_id", orderID, "err", err)
		return
	}
	restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		s.log.Error("reassign: load restaurant", "order_id", orderID, "err", err)
		return
	}

	match, err := s.matcher.NearestCourier(ctx, restaurant, excluded)
	if err != nil {
		s.log.Error("reassign: matching failed", "order_id", orderID, "err", err)
		return
	}
	if match == nil {
		s.cancelOrder(ctx, orderID, "no courier available")
		return
	}

	assigned, err := s.orders.Assign(ctx, order.AssignCommand{OrderID: orderID, CourierID: match.Courier.ID})
	if err != nil {
		s.log.Warn("reassign: assign", "order_id", orderID, "err", err)
		return
	}
	if err := s.armPendingAcceptance(ctx, assigned, match.Courier.ID); err != nil {
		s.log.Error("reassign: arm pending acceptance", "order_id", orderID, "err", err)
	}
}

func (s *Service) cancelOrder(ctx context.Context, orderID types.ID, reason string) {
	if _, err := s.orders.Cancel(ctx, order.CancelCommand{OrderID: orderID, Reason: reason}); err != nil {
		s.log.Error("cancel order", "order_id", orderID, "err", err)
		return
	}
	if err := s.attempts.Clear(ctx, orderID); err != nil {
		s.log.Warn("clear assignment attempts", "order_id", orderID, "err", err)
	}
}
