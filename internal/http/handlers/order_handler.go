// README: Customer-facing order handlers: create, pay, track, cancel.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mealdrop/internal/modules/dispatch"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/types"
)

// OrderCreator is the slice of the order service the handler needs.
type OrderCreator interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.Order, error)
}

// Dispatcher is the payment-and-assignment entrypoint plus customer tracking
// and cancellation. Cancel goes through dispatch rather than the order
// service so an outstanding offer is withdrawn and attempt rows are purged.
type Dispatcher interface {
	AssignAfterPayment(ctx context.Context, orderID types.ID, methodRef string) (*order.Order, error)
	Track(ctx context.Context, orderID types.ID) (*dispatch.Tracking, error)
	Cancel(ctx context.Context, orderID types.ID, reason string) (*order.Order, error)
}

type OrderHandler struct {
	orders     OrderCreator
	dispatcher Dispatcher
}

func NewOrderHandler(orders OrderCreator, dispatcher Dispatcher) *OrderHandler {
	return &OrderHandler{orders: orders, dispatcher: dispatcher}
}

type createOrderReq struct {
	RestaurantID  string `json:"restaurant_id"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RestaurantID == "" || req.CustomerEmail == "" || req.Street == "" {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	o, err := h.orders.Create(c.Request.Context(), order.CreateCommand{
		RestaurantID:  types.ID(req.RestaurantID),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		Street:        req.Street,
		City:          req.City,
		State:         req.State,
		ZipCode:       req.ZipCode,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

type payOrderReq struct {
	PaymentMethod string `json:"payment_method"`
}

// Pay captures the fee and hands the order to dispatch. The response carries
// the order as it stands after the first assignment round.
func (h *OrderHandler) Pay(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req payOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PaymentMethod == "" {
		writeError(c, http.StatusBadRequest, "missing payment_method")
		return
	}
	o, err := h.dispatcher.AssignAfterPayment(c.Request.Context(), types.ID(id), req.PaymentMethod)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *OrderHandler) Track(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	t, err := h.dispatcher.Track(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	o, err := h.dispatcher.Cancel(c.Request.Context(), types.ID(id), "customer cancelled")
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
