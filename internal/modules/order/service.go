// README: Order lifecycle service: validated transitions plus payment and notification side effects.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mealdrop/internal/logx"
	mapsadapter "mealdrop/internal/maps"
	"mealdrop/internal/payment"
	"mealdrop/internal/types"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrNoRoute         = errors.New("customer address not reachable from restaurant")
	ErrPaymentFailed   = errors.New("payment failed")
	ErrStaleTransition = errors.New("order state changed underneath the caller")
	ErrBadRequest      = errors.New("bad request")
)

type Service struct {
	repo      Repository
	geo       GeoService
	pricer    Pricer
	directory Directory
	processor payment.Processor
	notifier  Notifier
	log       logx.Logger
}

// Notifier sends a notification to a recipient address.
type Notifier interface {
	Send(to, subject, body string) error
}

func NewService(repo Repository, geo GeoService, pricer Pricer, directory Directory, processor payment.Processor, notifier Notifier, log logx.Logger) *Service {
	return &Service{
		repo:      repo,
		geo:       geo,
		pricer:    pricer,
		directory: directory,
		processor: processor,
		notifier:  notifier,
		log:       log,
	}
}

type CreateCommand struct {
	RestaurantID  types.ID
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	Street        string
	City          string
	State         string
	ZipCode       string
}

type AssignCommand struct {
	OrderID   types.ID
	CourierID types.ID
}

type AcceptCommand struct {
	OrderID   types.ID
	CourierID types.ID
}

type DeliverCommand struct {
	OrderID   types.ID
	CourierID types.ID
	Trace     string
}

type CancelCommand struct {
	OrderID types.ID
	Reason  string
}

// Create validates reachability, prices the delivery, and stores the order in
// CREATED. Fails with ErrNoRoute when the geo provider reports no path from
// the restaurant to the customer.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if cmd.RestaurantID == "" || cmd.CustomerEmail == "" || cmd.Street == "" {
		return nil, ErrBadRequest
	}
	restaurant, err := s.directory.GetRestaurant(ctx, cmd.RestaurantID)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:            types.ID(uuid.NewString()),
		Status:        StatusCreated,
		RestaurantID:  cmd.RestaurantID,
		CustomerName:  cmd.CustomerName,
		CustomerEmail: cmd.CustomerEmail,
		CustomerPhone: cmd.CustomerPhone,
		Street:        cmd.Street,
		City:          cmd.City,
		State:         cmd.State,
		ZipCode:       cmd.ZipCode,
		CreatedAt:     time.Now().UTC(),
	}

	route, err := s.geo.RouteDistance(ctx, restaurant.Address(), o.CustomerAddress())
	if err != nil {
		if errors.Is(err, mapsadapter.ErrNoRoute) || errors.Is(err, mapsadapter.ErrNotFound) {
			return nil, ErrNoRoute
		}
		return nil, fmt.Errorf("route lookup: %w", err)
	}

	o.Cost = s.pricer.Quote(route.DistanceMeters)
	eta := o.CreatedAt.Add(route.Duration)
	o.EstimatedDeliveryAt = &eta

	if err := s.repo.Create(ctx, o); err != nil {
		return nil, err
	}
	s.log.Info("order created", "order_id", o.ID, "restaurant_id", o.RestaurantID, "cost_cents", o.Cost.Amount)
	return o, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// Charge captures the delivery fee against the restaurant's stored payment
// method and records the intent on the order. The order is not transitioned.
func (s *Service) Charge(ctx context.Context, orderID types.ID, methodRef string) error {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return err
	}
	intent, err := s.processor.AuthorizeAndCapture(ctx, restaurant.CustomerRef, o.Cost.Amount, methodRef)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPaymentFailed, err)
	}
	if intent.Status != payment.StatusSucceeded && intent.Status != payment.StatusPending {
		return fmt.Errorf("%w: intent status %s", ErrPaymentFailed, intent.Status)
	}
	return s.repo.SetPaymentIntent(ctx, orderID, intent.ID, methodRef)
}

// Assign moves the order to ASSIGNED under the given courier. Reassignment of
// an already ASSIGNED order to a different courier goes through the same
// transition.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusAssigned) {
		return nil, ErrStaleTransition
	}
	ok, err := s.repo.UpdateStatus(ctx, o.ID, o.Status, StatusAssigned, o.StatusVersion, &cmd.CourierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}
	s.log.Info("order assigned", "order_id", o.ID, "courier_id", cmd.CourierID)
	return s.repo.Get(ctx, o.ID)
}

// Accept confirms the payment and moves the order to ACCEPTED. Valid only
// while the order is ASSIGNED to this courier.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusAssigned || o.CourierID == nil || *o.CourierID != cmd.CourierID {
		return nil, ErrStaleTransition
	}
	if o.PaymentIntentID != nil {
		status, err := s.processor.Confirm(ctx, *o.PaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("confirm payment: %w", err)
		}
		if status != payment.StatusSucceeded {
			return nil, fmt.Errorf("%w: intent status %s", ErrPaymentFailed, status)
		}
	}
	ok, err := s.repo.UpdateStatus(ctx, o.ID, StatusAssigned, StatusAccepted, o.StatusVersion, &cmd.CourierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}
	s.log.Info("order accepted", "order_id", o.ID, "courier_id", cmd.CourierID)
	return s.repo.Get(ctx, o.ID)
}

// PickUp bulk-transitions all of the courier's ACCEPTED orders to PICKEDUP and
// notifies each customer. Returns the picked-up orders.
func (s *Service) PickUp(ctx context.Context, courierID types.ID) ([]Order, error) {
	accepted, err := s.repo.ListByCourierAndStatus(ctx, courierID, StatusAccepted)
	if err != nil {
		return nil, err
	}
	if len(accepted) == 0 {
		return nil, ErrStaleTransition
	}

	courier, err := s.directory.GetCourier(ctx, courierID)
	if err != nil {
		return nil, err
	}

	var picked []Order
	for _, o := range accepted {
		ok, err := s.repo.UpdateStatus(ctx, o.ID, StatusAccepted, StatusPickedUp, o.StatusVersion, o.CourierID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Raced by a cancel; skip this order and keep going.
			continue
		}
		s.sendMail(o.CustomerEmail,
			fmt.Sprintf("Your order #%s is picked up", o.ID),
			fmt.Sprintf("<h2>Your order is picked up by %s %s.</h2>", courier.FirstName, courier.LastName))
		updated, err := s.repo.Get(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		picked = append(picked, *updated)
	}
	if len(picked) == 0 {
		return nil, ErrStaleTransition
	}
	return picked, nil
}

// Deliver pays the courier, records the route trace and actual delivery time,
// and moves the order to DELIVERED (then PAIDOUT once the payout succeeds).
func (s *Service) Deliver(ctx context.Context, cmd DeliverCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPickedUp || o.CourierID == nil || *o.CourierID != cmd.CourierID {
		return nil, ErrStaleTransition
	}

	ok, err := s.repo.UpdateStatus(ctx, o.ID, StatusPickedUp, StatusDelivered, o.StatusVersion, o.CourierID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}
	if err := s.repo.RecordDelivery(ctx, o.ID, cmd.Trace, time.Now().UTC()); err != nil {
		return nil, err
	}

	restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
	if err != nil {
		return nil, err
	}
	s.sendMail(o.CustomerEmail,
		fmt.Sprintf("Your order #%s is delivered", o.ID),
		"<h2>Your order is delivered.</h2>")
	s.sendMail(restaurant.Email,
		fmt.Sprintf("Order #%s is delivered", o.ID),
		"<h2>Your order is delivered.</h2>")

	// Payout failure leaves the order DELIVERED for operator retry.
	courier, err := s.directory.GetCourier(ctx, cmd.CourierID)
	if err != nil {
		return s.repo.Get(ctx, o.ID)
	}
	if _, err := s.processor.Payout(ctx, o.Cost.Amount, courier.PayoutAccountRef); err != nil {
		s.log.Error("courier payout failed", "order_id", o.ID, "courier_id", cmd.CourierID, "err", err)
		return s.repo.Get(ctx, o.ID)
	}
	delivered, err := s.repo.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.UpdateStatus(ctx, o.ID, StatusDelivered, StatusPaidOut, delivered.StatusVersion, delivered.CourierID); err != nil {
		return nil, err
	}
	s.log.Info("order delivered", "order_id", o.ID, "courier_id", cmd.CourierID)
	return s.repo.Get(ctx, o.ID)
}

// Cancel transitions the order to CANCELLED, refunds any captured payment, and
// notifies both parties. Not valid once the order is PICKEDUP or later.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.repo.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, ErrStaleTransition
	}
	ok, err := s.repo.UpdateStatus(ctx, o.ID, o.Status, StatusCancelled, o.StatusVersion, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrStaleTransition
	}

	if o.PaymentIntentID != nil {
		if err := s.processor.Cancel(ctx, *o.PaymentIntentID); err != nil {
			s.log.Error("refund failed", "order_id", o.ID, "err", err)
		}
	}

	restaurant, err := s.directory.GetRestaurant(ctx, o.RestaurantID)
	if err == nil {
		s.sendMail(restaurant.Email,
			fmt.Sprintf("Order #%s is cancelled", o.ID),
			fmt.Sprintf("<h2>Your order is cancelled: %s.</h2>", cmd.Reason))
	}
	s.sendMail(o.CustomerEmail,
		fmt.Sprintf("Your order #%s is cancelled", o.ID),
		fmt.Sprintf("<h2>Your order is cancelled: %s.</h2>", cmd.Reason))

	s.log.Info("order cancelled", "order_id", o.ID, "reason", cmd.Reason)
	return s.repo.Get(ctx, o.ID)
}

// OutstandingByCourier returns the courier's orders still in flight, used to
// restore courier state on reconnect.
func (s *Service) OutstandingByCourier(ctx context.Context, courierID types.ID) ([]Order, error) {
	return s.repo.ListByCourierAndStatus(ctx, courierID, StatusAssigned, StatusAccepted, StatusPickedUp)
}

// AcceptedLoadByRestaurant exposes the grouped courier load for matching.
func (s *Service) AcceptedLoadByRestaurant(ctx context.Context, restaurantID types.ID) ([]CourierLoad, error) {
	return s.repo.AcceptedLoadByRestaurant(ctx, restaurantID)
}

// sendMail reports notification failures in the log only; a missed email never
// fails a delivery transition.
func (s *Service) sendMail(to, subject, body string) {
	if err := s.notifier.Send(to, subject, body); err != nil {
		s.log.Warn("notification failed", "to", to, "subject", subject, "err", err)
	}
}
