// README: Order aggregate and status definitions.
package order

import (
	"time"

	"mealdrop/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusCreated   Status = "created"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "pickedup"
	StatusDelivered Status = "delivered"
	StatusPaidOut   Status = "paidout"
	StatusCancelled Status = "cancelled"
)

type Order struct {
	ID            types.ID  `json:"id"`
	Status        Status    `json:"status"`
	StatusVersion int       `json:"-"`
	RestaurantID  types.ID  `json:"restaurant_id"`
	CourierID     *types.ID `json:"courier_id,omitempty"`

	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`

	Cost             types.Money `json:"cost"`
	PaymentIntentID  *string     `json:"-"`
	PaymentMethodRef string      `json:"-"`

	EstimatedDeliveryAt *time.Time `json:"estimated_delivery_at,omitempty"`
	AcceptedAt          *time.Time `json:"accepted_at,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
	Trace               string     `json:"trace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CustomerAddress renders the drop-off address used for routing.
func (o *Order) CustomerAddress() string {
	return o.Street + ", " + o.City + ", " + o.State + ", " + o.ZipCode
}

// AllowedTransitions represents the order state flow as code. The
// assigned self-loop is reassignment to a different courier.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:   {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusAssigned, StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusDelivered},
	StatusDelivered: {StatusPaidOut},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// CourierRequired reports whether an order in this status must carry a
// courier reference.
func CourierRequired(s Status) bool {
	switch s {
	case StatusAssigned, StatusAccepted, StatusPickedUp, StatusDelivered, StatusPaidOut:
		return true
	}
	return false
}
