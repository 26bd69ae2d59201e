// README: Courier realtime endpoint: websocket upgrade, inbound message loop, outbound envelopes.
package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mealdrop/internal/logx"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/dispatch"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/registry"
	"mealdrop/internal/types"
)

// CourierDispatcher is the courier-facing slice of the dispatch service.
type CourierDispatcher interface {
	Connect(ctx context.Context, courierID types.ID, conn registry.Conn) error
	Disconnect(ctx context.Context, courierID types.ID, conn registry.Conn)
	UpdateLocation(ctx context.Context, courierID types.ID, pos types.Point) error
	Accept(ctx context.Context, courierID, orderID types.ID) (*order.Order, error)
	Reject(ctx context.Context, courierID, orderID types.ID) error
	PickUp(ctx context.Context, courierID types.ID) ([]order.Order, error)
	Deliver(ctx context.Context, courierID, orderID types.ID) (*order.Order, error)
}

// CourierDirectory verifies the courier exists before the upgrade.
type CourierDirectory interface {
	GetCourier(ctx context.Context, id types.ID) (*accounts.Courier, error)
}

type CourierHandler struct {
	dispatcher CourierDispatcher
	directory  CourierDirectory
	upgrader   websocket.Upgrader
	log        logx.Logger
}

func NewCourierHandler(dispatcher CourierDispatcher, directory CourierDirectory, log logx.Logger) *CourierHandler {
	return &CourierHandler{
		dispatcher: dispatcher,
		directory:  directory,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// envelope is the outbound wire format.
type envelope struct {
	Code int `json:"code"`
	Data any `json:"data,omitempty"`
}

// courierMsg is the inbound wire format. A message with coordinates and no
// action is a position report.
type courierMsg struct {
	Action    string   `json:"action,omitempty"`
	OrderID   string   `json:"order_id,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// wsConn adapts a websocket connection to the registry's Conn. Writes are
// serialized; gorilla allows one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) Push(code int, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(envelope{Code: code, Data: data})
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// Serve upgrades the courier's session and pumps inbound messages until the
// socket drops.
func (h *CourierHandler) Serve(c *gin.Context) {
	courierID := types.ID(c.Param("id"))
	if courierID == "" {
		writeError(c, http.StatusBadRequest, "missing courier id")
		return
	}
	if _, err := h.directory.GetCourier(c.Request.Context(), courierID); err != nil {
		writeError(c, http.StatusNotFound, "unknown courier")
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "courier_id", courierID, "err", err)
		return
	}
	conn := &wsConn{ws: ws}

	ctx := context.Background()
	_ = conn.Push(dispatch.CodeSucceed, gin.H{"message": "connected"})
	if err := h.dispatcher.Connect(ctx, courierID, conn); err != nil {
		h.log.Error("courier connect failed", "courier_id", courierID, "err", err)
		_ = conn.Close()
		return
	}
	defer h.dispatcher.Disconnect(ctx, courierID, conn)

	for {
		var msg courierMsg
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("courier socket error", "courier_id", courierID, "err", err)
			}
			return
		}
		h.handleMessage(ctx, courierID, conn, msg)
	}
}

func (h *CourierHandler) handleMessage(ctx context.Context, courierID types.ID, conn *wsConn, msg courierMsg) {
	switch msg.Action {
	case "", "location":
		if msg.Latitude == nil || msg.Longitude == nil {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "latitude and longitude are required"})
			return
		}
		pos := types.Point{Lat: *msg.Latitude, Lng: *msg.Longitude}
		if !pos.Valid() {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "coordinates out of range"})
			return
		}
		if err := h.dispatcher.UpdateLocation(ctx, courierID, pos); err != nil {
			h.log.Warn("location update failed", "courier_id", courierID, "err", err)
		}

	case "accept":
		if msg.OrderID == "" {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "order_id is required"})
			return
		}
		if _, err := h.dispatcher.Accept(ctx, courierID, types.ID(msg.OrderID)); err != nil {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": err.Error()})
		}

	case "reject":
		if msg.OrderID == "" {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "order_id is required"})
			return
		}
		if err := h.dispatcher.Reject(ctx, courierID, types.ID(msg.OrderID)); err != nil {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": err.Error()})
		}

	case "pickup":
		if _, err := h.dispatcher.PickUp(ctx, courierID); err != nil {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": err.Error()})
		}

	case "deliver":
		if msg.OrderID == "" {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "order_id is required"})
			return
		}
		if _, err := h.dispatcher.Deliver(ctx, courierID, types.ID(msg.OrderID)); err != nil {
			_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": err.Error()})
		}

	default:
		_ = conn.Push(dispatch.CodeValidationError, gin.H{"message": "unknown action"})
	}
}
