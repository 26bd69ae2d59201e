// README: Courier connection registry and the owned presence record per live connection.
package registry

import (
	"errors"
	"sync"
	"time"

	"mealdrop/internal/types"
)

// Status is the courier's dispatch state while connected.
type Status string

const (
	StatusWaiting           Status = "waiting"
	StatusPendingAcceptance Status = "pending_acceptance"
	StatusInDelivery        Status = "in_delivery"
)

var (
	ErrNotConnected   = errors.New("courier not connected")
	ErrAlreadyPending = errors.New("courier already has a pending offer")
)

// Conn is a live bidirectional courier channel. The registry stores it as a
// lookup-only back reference; business state lives in the presence record.
type Conn interface {
	Push(code int, data any) error
	Close() error
}

// presence is the single source of truth for "is this courier free". One
// exists per live connection; it is created on connect and destroyed on
// disconnect. Guarded by the registry mutex.
type presence struct {
	conn    Conn
	status  Status
	pending types.ID // order awaiting acceptance, empty unless status is pending
	timer   *time.Timer
}

// Snapshot is a read-only copy of a presence record.
type Snapshot struct {
	CourierID      types.ID
	Status         Status
	PendingOrderID types.ID
	Connected      bool
}

type Registry struct {
	mu       sync.Mutex
	couriers map[types.ID]*presence
}

func New() *Registry {
	return &Registry{couriers: make(map[types.ID]*presence)}
}

// Connect registers a courier connection in WAITING state. A previous
// connection for the same courier is closed and replaced.
func (r *Registry) Connect(courierID types.ID, conn Conn) {
	r.mu.Lock()
	prev, ok := r.couriers[courierID]
	r.couriers[courierID] = &presence{conn: conn, status: StatusWaiting}
	r.mu.Unlock()

	if ok {
		if prev.timer != nil {
			prev.timer.Stop()
		}
		_ = prev.conn.Close()
	}
}

// Disconnect removes the courier's presence record and returns its final
// snapshot. When conn is non-nil the record is only removed if it still owns
// that connection, so a stale disconnect cannot tear down a fresh session.
func (r *Registry) Disconnect(courierID types.ID, conn Conn) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.couriers[courierID]
	if !ok {
		return Snapshot{CourierID: courierID}, false
	}
	if conn != nil && p.conn != conn {
		return Snapshot{CourierID: courierID}, false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(r.couriers, courierID)
	return snapshot(courierID, p), true
}

// Get returns the courier's current presence snapshot.
func (r *Registry) Get(courierID types.ID) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.couriers[courierID]
	if !ok {
		return Snapshot{CourierID: courierID}, false
	}
	return snapshot(courierID, p), true
}

// IsConnected reports whether the courier has a live connection.
func (r *Registry) IsConnected(courierID types.ID) bool {
	_, ok := r.Get(courierID)
	return ok
}

// Push sends an envelope over the courier's connection.
func (r *Registry) Push(courierID types.ID, code int, data any) error {
	r.mu.Lock()
	p, ok := r.couriers[courierID]
	r.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}
	return p.conn.Push(code, data)
}

// BeginPendingAcceptance marks the courier as holding one offered order and
// arms its acceptance timer. A courier may carry at most one outstanding
// offer; a second one is rejected.
func (r *Registry) BeginPendingAcceptance(courierID, orderID types.ID, timeout time.Duration, onTimeout func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.couriers[courierID]
	if !ok {
		return ErrNotConnected
	}
	if p.status == StatusPendingAcceptance {
		return ErrAlreadyPending
	}
	p.status = StatusPendingAcceptance
	p.pending = orderID
	p.timer = time.AfterFunc(timeout, onTimeout)
	return nil
}

// EndPendingAcceptance disarms the timer and moves the courier to next. It
// no-ops (returning false) unless the courier is still pending on orderID,
// which makes timer callbacks and explicit accept/reject idempotent rivals.
func (r *Registry) EndPendingAcceptance(courierID, orderID types.ID, next Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.couriers[courierID]
	if !ok || p.status != StatusPendingAcceptance || p.pending != orderID {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = ""
	p.status = next
	return true
}

// SetStatus forces the courier's status outside a pending-acceptance cycle.
func (r *Registry) SetStatus(courierID types.ID, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.couriers[courierID]
	if !ok {
		return false
	}
	p.status = status
	return true
}

func snapshot(id types.ID, p *presence) Snapshot {
	return Snapshot{
		CourierID:      id,
		Status:         p.status,
		PendingOrderID: p.pending,
		Connected:      true,
	}
}
