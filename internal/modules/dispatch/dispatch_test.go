// README: Dispatch orchestrator tests: offer cycle, timeout reassignment, accept/timeout races.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mealdrop/internal/config"
	"mealdrop/internal/logx"
	"mealdrop/internal/modules/accounts"
	"mealdrop/internal/modules/matching"
	"mealdrop/internal/modules/order"
	"mealdrop/internal/modules/presence"
	"mealdrop/internal/modules/registry"
	"mealdrop/internal/types"
)

func TestAssignAfterPaymentOffersNearest(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn := h.connect(t, "c1")
	h.matcher.queue("c1")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	got, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card")
	if err != nil {
		t.Fatalf("assign after payment: %v", err)
	}
	if got.Status != order.StatusAssigned {
		t.Fatalf("expected assigned, got %s", got.Status)
	}
	if !h.orders.charged["o1"] {
		t.Fatal("expected order to be charged before assignment")
	}
	if conn.lastCode(t) != CodeOrderOffered {
		t.Fatalf("expected offer push %d, got %d", CodeOrderOffered, conn.lastCode(t))
	}

	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusPendingAcceptance || snap.PendingOrderID != "o1" {
		t.Fatalf("unexpected courier state: %+v", snap)
	}
	if !h.presence.removed["c1"] {
		t.Fatal("expected courier to leave the available index while pending")
	}
}

func TestAssignAfterPaymentNoCourierCancels(t *testing.T) {
	h := newHarness(t, time.Hour)

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	_, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card")
	if !errors.Is(err, ErrNoCourierAvailable) {
		t.Fatalf("expected ErrNoCourierAvailable, got %v", err)
	}
	if h.orders.get("o1").Status != order.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", h.orders.get("o1").Status)
	}
}

func TestAssignAfterPaymentUnreachableCourier(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.matcher.queue("c_ghost") // matched but never connected

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	_, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card")
	if !errors.Is(err, ErrCourierUnreachable) {
		t.Fatalf("expected ErrCourierUnreachable, got %v", err)
	}
	// The order is untouched so the caller can retry.
	if h.orders.get("o1").Status != order.StatusCreated {
		t.Fatalf("expected created, got %s", h.orders.get("o1").Status)
	}
}

func TestAssignAfterPaymentChargeFailureCancels(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.connect(t, "c1")
	h.matcher.queue("c1")
	h.orders.chargeErr = order.ErrPaymentFailed

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	_, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card")
	if !errors.Is(err, order.ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}
	if h.orders.get("o1").Status != order.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", h.orders.get("o1").Status)
	}
}

func TestSpareCapacityAutoAccept(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn := h.connect(t, "c_busy")
	h.matcher.spare = "c_busy"

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	got, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card")
	if err != nil {
		t.Fatalf("assign after payment: %v", err)
	}
	if got.Status != order.StatusAccepted {
		t.Fatalf("expected auto-accepted, got %s", got.Status)
	}
	if conn.lastCode(t) != CodeOrderAccepted {
		t.Fatalf("expected accepted push %d, got %d", CodeOrderAccepted, conn.lastCode(t))
	}
}

func TestAcceptWinsOffer(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn := h.connect(t, "c1")
	h.matcher.queue("c1")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	accepted, err := h.svc.Accept(context.Background(), "c1", "o1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != order.StatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	if conn.lastCode(t) != CodeOrderAccepted {
		t.Fatalf("expected accepted push, got %d", conn.lastCode(t))
	}

	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusInDelivery {
		t.Fatalf("expected in_delivery, got %s", snap.Status)
	}
	if !h.attempts.cleared["o1"] {
		t.Fatal("expected attempt history to be cleared on acceptance")
	}
}

func TestAcceptAfterTimerReleaseKeepsCourierBusy(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.connect(t, "c1")
	h.matcher.queue("c1")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// A firing timer releases the courier to WAITING just before the accept
	// lands but hasn't reassigned the order row yet. The accept wins the
	// order, so the courier must end up IN_DELIVERY, not WAITING.
	if !h.reg.EndPendingAcceptance("c1", "o1", registry.StatusWaiting) {
		t.Fatal("expected pending release to succeed")
	}

	accepted, err := h.svc.Accept(context.Background(), "c1", "o1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != order.StatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusInDelivery {
		t.Fatalf("expected in_delivery, got %s", snap.Status)
	}
}

func TestCancelWithdrawsPendingOffer(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn := h.connect(t, "c1")
	h.matcher.queue("c1")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	cancelled, err := h.svc.Cancel(context.Background(), "o1", "customer cancelled")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != order.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CourierID != nil {
		t.Fatalf("cancelled order still references courier %q", *cancelled.CourierID)
	}

	// The courier holding the offer is released immediately, not left to sit
	// out the acceptance timer.
	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusWaiting || snap.PendingOrderID != "" {
		t.Fatalf("expected released courier, got %+v", snap)
	}
	if conn.lastCode(t) != CodeSucceed {
		t.Fatalf("expected cancellation notice %d, got %d", CodeSucceed, conn.lastCode(t))
	}
	if !h.attempts.cleared["o1"] {
		t.Fatal("expected attempt history to be purged on cancellation")
	}
}

func TestRejectReassignsWithExclusion(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn1 := h.connect(t, "c1")
	conn2 := h.connect(t, "c2")
	h.matcher.queue("c1", "c2")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := h.svc.Reject(context.Background(), "c1", "o1"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if conn1.lastCode(t) != CodeOfferRejected {
		t.Fatalf("expected rejected notice on c1, got %d", conn1.lastCode(t))
	}
	if conn2.lastCode(t) != CodeOrderOffered {
		t.Fatalf("expected offer on c2, got %d", conn2.lastCode(t))
	}
	if _, ok := h.matcher.lastExcluded["c1"]; !ok {
		t.Fatal("expected c1 in the exclusion set of the second match")
	}

	got := h.orders.get("o1")
	if got.Status != order.StatusAssigned || *got.CourierID != "c2" {
		t.Fatalf("expected assigned to c2, got %s (%v)", got.Status, got.CourierID)
	}
}

func TestTimeoutReassigns(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	conn1 := h.connect(t, "c1")
	conn2 := h.connect(t, "c2")
	h.matcher.queue("c1", "c2")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	waitFor(t, func() bool { return conn2.hasCode(CodeOrderOffered) }, "second offer")
	if !conn1.hasCode(CodeOfferTimedOut) {
		t.Fatal("expected timeout notice on c1")
	}

	snap1, _ := h.reg.Get("c1")
	if snap1.Status != registry.StatusWaiting {
		t.Fatalf("expected c1 back to waiting, got %s", snap1.Status)
	}
	got := h.orders.get("o1")
	if got.Status != order.StatusAssigned || *got.CourierID != "c2" {
		t.Fatalf("expected assigned to c2, got %s (%v)", got.Status, got.CourierID)
	}
}

func TestTimeoutWithNoFallbackCancels(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	h.connect(t, "c1")
	h.matcher.queue("c1") // nobody after c1

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	waitFor(t, func() bool { return h.orders.get("o1").Status == order.StatusCancelled }, "cancel")
	if !h.attempts.cleared["o1"] {
		t.Fatal("expected attempt history to be cleared on cancel")
	}
}

func TestAcceptVsTimeoutExactlyOneWins(t *testing.T) {
	h := newHarness(t, 15*time.Millisecond)
	h.connect(t, "c1")
	h.connect(t, "c2")
	h.matcher.queue("c1", "c2")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Accept lands right around the timer deadline.
	time.Sleep(10 * time.Millisecond)
	_, acceptErr := h.svc.Accept(context.Background(), "c1", "o1")

	// Let any in-flight timer callback finish.
	time.Sleep(100 * time.Millisecond)

	got := h.orders.get("o1")
	if acceptErr == nil {
		// Accept won; the timeout must not have moved the order away.
		if got.Status != order.StatusAccepted || *got.CourierID != "c1" {
			t.Fatalf("accept won but order is %s (%v)", got.Status, got.CourierID)
		}
	} else {
		// The timeout won; the order belongs to c2 now.
		if got.Status != order.StatusAssigned || *got.CourierID != "c2" {
			t.Fatalf("timeout won but order is %s (%v)", got.Status, got.CourierID)
		}
	}
}

func TestDisconnectWhilePendingReassigns(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn1 := h.connect(t, "c1")
	conn2 := h.connect(t, "c2")
	h.matcher.queue("c1", "c2")

	o := h.orders.seed("o1", "r1", order.StatusCreated, "")
	if _, err := h.svc.AssignAfterPayment(context.Background(), o.ID, "pm_card"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	h.svc.Disconnect(context.Background(), "c1", conn1)

	if conn2.lastCode(t) != CodeOrderOffered {
		t.Fatalf("expected offer on c2 after disconnect, got %d", conn2.lastCode(t))
	}
	got := h.orders.get("o1")
	if *got.CourierID != "c2" {
		t.Fatalf("expected order moved to c2, got %v", got.CourierID)
	}
}

func TestUpdateLocationRouting(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.connect(t, "c1")

	pos := types.Point{Lat: 40.0, Lng: -88.0}
	if err := h.svc.UpdateLocation(context.Background(), "c1", pos); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if h.presence.available["c1"] != pos {
		t.Fatal("expected WAITING courier to land in the available index")
	}

	h.reg.SetStatus("c1", registry.StatusInDelivery)
	if err := h.svc.UpdateLocation(context.Background(), "c1", pos); err != nil {
		t.Fatalf("update location: %v", err)
	}
	if len(h.presence.samples["c1"]) != 1 {
		t.Fatal("expected IN_DELIVERY courier to append a route sample")
	}

	if err := h.svc.UpdateLocation(context.Background(), "ghost", pos); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectResumesAssignedOrder(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.orders.seed("o1", "r1", order.StatusAssigned, "c1")

	conn := newFakeConn()
	if err := h.svc.Connect(context.Background(), "c1", conn); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if conn.lastCode(t) != CodeOrderOffered {
		t.Fatalf("expected re-offer on reconnect, got %d", conn.lastCode(t))
	}
	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusPendingAcceptance {
		t.Fatalf("expected pending_acceptance, got %s", snap.Status)
	}
}

func TestConnectResumesPickedUpOrder(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.orders.seed("o1", "r1", order.StatusPickedUp, "c1")

	conn := newFakeConn()
	if err := h.svc.Connect(context.Background(), "c1", conn); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if conn.lastCode(t) != CodeInDelivery {
		t.Fatalf("expected in-delivery resume, got %d", conn.lastCode(t))
	}
	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusInDelivery {
		t.Fatalf("expected in_delivery, got %s", snap.Status)
	}
}

func TestDeliverReleasesCourier(t *testing.T) {
	h := newHarness(t, time.Hour)
	conn := h.connect(t, "c1")
	h.reg.SetStatus("c1", registry.StatusInDelivery)

	h.orders.seed("o1", "r1", order.StatusPickedUp, "c1")
	h.presence.samples["c1"] = []presence.RouteSample{
		{CourierID: "c1", Position: types.Point{Lat: 40.0, Lng: -88.0}},
		{CourierID: "c1", Position: types.Point{Lat: 40.01, Lng: -88.01}},
	}

	delivered, err := h.svc.Deliver(context.Background(), "c1", "o1")
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != order.StatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.Status)
	}
	if h.orders.lastTrace == "" {
		t.Fatal("expected an encoded trace from route samples")
	}
	if conn.lastCode(t) != CodeOrderDelivered {
		t.Fatalf("expected delivered push, got %d", conn.lastCode(t))
	}

	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusWaiting {
		t.Fatalf("expected courier released to waiting, got %s", snap.Status)
	}
	if len(h.presence.samples["c1"]) != 0 {
		t.Fatal("expected samples cleared after release")
	}
}

func TestDeliverKeepsCourierBusyWithRemainingOrders(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.connect(t, "c1")
	h.reg.SetStatus("c1", registry.StatusInDelivery)

	h.orders.seed("o1", "r1", order.StatusPickedUp, "c1")
	h.orders.seed("o2", "r1", order.StatusPickedUp, "c1")

	if _, err := h.svc.Deliver(context.Background(), "c1", "o1"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	snap, _ := h.reg.Get("c1")
	if snap.Status != registry.StatusInDelivery {
		t.Fatalf("expected courier still in delivery, got %s", snap.Status)
	}
}

func TestTrackExposesCourierPosition(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.orders.seed("o1", "r1", order.StatusPickedUp, "c1")
	h.presence.samples["c1"] = []presence.RouteSample{
		{CourierID: "c1", Position: types.Point{Lat: 40.5, Lng: -88.5}},
	}

	tr, err := h.svc.Track(context.Background(), "o1")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tr.CourierPosition == nil || tr.CourierPosition.Lat != 40.5 {
		t.Fatalf("expected courier position, got %+v", tr.CourierPosition)
	}

	h.orders.seed("o2", "r1", order.StatusCreated, "")
	tr, err = h.svc.Track(context.Background(), "o2")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if tr.CourierPosition != nil {
		t.Fatal("expected no position for an unassigned order")
	}
}

// --- harness ---

type harness struct {
	svc      *Service
	reg      *registry.Registry
	orders   *fakeOrders
	matcher  *fakeMatcher
	presence *fakePresence
	attempts *fakeAttempts
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		reg:      registry.New(),
		orders:   newFakeOrders(),
		matcher:  &fakeMatcher{},
		presence: newFakePresence(),
		attempts: newFakeAttempts(),
	}
	h.svc = NewService(
		h.orders, h.matcher, h.reg, h.presence, h.attempts, fakeDirectory{},
		config.DispatchConfig{AcceptanceTimeout: timeout},
		logx.Nop(),
	)
	return h
}

func (h *harness) connect(t *testing.T, courierID types.ID) *fakeConn {
	t.Helper()
	conn := newFakeConn()
	if err := h.svc.Connect(context.Background(), courierID, conn); err != nil {
		t.Fatalf("connect %s: %v", courierID, err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeConn struct {
	mu    sync.Mutex
	codes []int
}

func newFakeConn() *fakeConn { return &fakeConn{} }

func (f *fakeConn) Push(code int, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) lastCode(t *testing.T) int {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.codes) == 0 {
		t.Fatal("no pushes recorded")
	}
	return f.codes[len(f.codes)-1]
}

func (f *fakeConn) hasCode(code int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c == code {
			return true
		}
	}
	return false
}

// fakeOrders mirrors the lifecycle service's transition guards in memory.
type fakeOrders struct {
	mu        sync.Mutex
	orders    map[types.ID]*order.Order
	charged   map[types.ID]bool
	chargeErr error
	lastTrace string
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		orders:  make(map[types.ID]*order.Order),
		charged: make(map[types.ID]bool),
	}
}

func (f *fakeOrders) seed(id, restaurantID types.ID, status order.Status, courierID types.ID) *order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := &order.Order{
		ID:            id,
		Status:        status,
		RestaurantID:  restaurantID,
		CustomerEmail: "pat@example.com",
		Cost:          types.USD(700),
		CreatedAt:     time.Now().UTC(),
	}
	if courierID != "" {
		o.CourierID = &courierID
	}
	f.orders[id] = o
	return o
}

func (f *fakeOrders) get(id types.ID) order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

func (f *fakeOrders) Get(ctx context.Context, id types.ID) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) Charge(ctx context.Context, orderID types.ID, methodRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chargeErr != nil {
		return f.chargeErr
	}
	f.charged[orderID] = true
	return nil
}

func (f *fakeOrders) Assign(ctx context.Context, cmd order.AssignCommand) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[cmd.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !order.CanTransition(o.Status, order.StatusAssigned) {
		return nil, order.ErrStaleTransition
	}
	cid := cmd.CourierID
	o.Status = order.StatusAssigned
	o.CourierID = &cid
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) Accept(ctx context.Context, cmd order.AcceptCommand) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[cmd.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != order.StatusAssigned || o.CourierID == nil || *o.CourierID != cmd.CourierID {
		return nil, order.ErrStaleTransition
	}
	o.Status = order.StatusAccepted
	now := time.Now().UTC()
	o.AcceptedAt = &now
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) PickUp(ctx context.Context, courierID types.ID) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var picked []order.Order
	for _, o := range f.orders {
		if o.CourierID != nil && *o.CourierID == courierID && o.Status == order.StatusAccepted {
			o.Status = order.StatusPickedUp
			picked = append(picked, *o)
		}
	}
	if len(picked) == 0 {
		return nil, order.ErrStaleTransition
	}
	return picked, nil
}

func (f *fakeOrders) Deliver(ctx context.Context, cmd order.DeliverCommand) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[cmd.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if o.Status != order.StatusPickedUp {
		return nil, order.ErrStaleTransition
	}
	o.Status = order.StatusDelivered
	o.Trace = cmd.Trace
	f.lastTrace = cmd.Trace
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[cmd.OrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	if !order.CanTransition(o.Status, order.StatusCancelled) {
		return nil, order.ErrStaleTransition
	}
	o.Status = order.StatusCancelled
	o.CourierID = nil
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) OutstandingByCourier(ctx context.Context, courierID types.ID) ([]order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []order.Order
	for _, o := range f.orders {
		if o.CourierID == nil || *o.CourierID != courierID {
			continue
		}
		switch o.Status {
		case order.StatusAssigned, order.StatusAccepted, order.StatusPickedUp:
			out = append(out, *o)
		}
	}
	return out, nil
}

// fakeMatcher returns scripted couriers in order, honoring the exclusion set.
type fakeMatcher struct {
	mu           sync.Mutex
	couriers     []types.ID
	spare        types.ID
	lastExcluded map[types.ID]struct{}
}

func (f *fakeMatcher) queue(ids ...types.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.couriers = append(f.couriers, ids...)
}

func (f *fakeMatcher) NearestCourier(ctx context.Context, restaurant *accounts.Restaurant, excluded map[types.ID]struct{}) (*matching.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastExcluded = excluded
	for _, id := range f.couriers {
		if _, skip := excluded[id]; skip {
			continue
		}
		return &matching.Match{Courier: &accounts.Courier{ID: id, FirstName: "Casey", LastName: "Rider"}}, nil
	}
	return nil, nil
}

func (f *fakeMatcher) SpareCapacityCourier(ctx context.Context, restaurantID types.ID) (types.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spare, nil
}

type fakePresence struct {
	mu        sync.Mutex
	available map[types.ID]types.Point
	removed   map[types.ID]bool
	samples   map[types.ID][]presence.RouteSample
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		available: make(map[types.ID]types.Point),
		removed:   make(map[types.ID]bool),
		samples:   make(map[types.ID][]presence.RouteSample),
	}
}

func (f *fakePresence) SetAvailable(ctx context.Context, courierID types.ID, pos types.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[courierID] = pos
	f.removed[courierID] = false
	return nil
}

func (f *fakePresence) RemoveAvailable(ctx context.Context, courierID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.available, courierID)
	f.removed[courierID] = true
	return nil
}

func (f *fakePresence) AppendRouteSample(ctx context.Context, sample presence.RouteSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[sample.CourierID] = append(f.samples[sample.CourierID], sample)
	return nil
}

func (f *fakePresence) RouteSamplesSince(ctx context.Context, courierID types.ID, since time.Time) ([]presence.RouteSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]presence.RouteSample(nil), f.samples[courierID]...), nil
}

func (f *fakePresence) LatestRouteSample(ctx context.Context, courierID types.ID) (*presence.RouteSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ss := f.samples[courierID]
	if len(ss) == 0 {
		return nil, nil
	}
	last := ss[len(ss)-1]
	return &last, nil
}

func (f *fakePresence) ClearRouteSamples(ctx context.Context, courierID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.samples, courierID)
	return nil
}

type fakeAttempts struct {
	mu      sync.Mutex
	byOrder map[types.ID]map[types.ID]struct{}
	cleared map[types.ID]bool
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{
		byOrder: make(map[types.ID]map[types.ID]struct{}),
		cleared: make(map[types.ID]bool),
	}
}

func (f *fakeAttempts) Record(ctx context.Context, orderID, courierID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byOrder[orderID] == nil {
		f.byOrder[orderID] = make(map[types.ID]struct{})
	}
	f.byOrder[orderID][courierID] = struct{}{}
	return nil
}

func (f *fakeAttempts) ExcludedCouriers(ctx context.Context, orderID types.ID) (map[types.ID]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[types.ID]struct{}, len(f.byOrder[orderID]))
	for id := range f.byOrder[orderID] {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeAttempts) Clear(ctx context.Context, orderID types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byOrder, orderID)
	f.cleared[orderID] = true
	return nil
}

type fakeDirectory struct{}

func (fakeDirectory) GetRestaurant(ctx context.Context, id types.ID) (*accounts.Restaurant, error) {
	return &accounts.Restaurant{
		ID: id, Name: "Testaurant", Email: "owner@example.com",
		Street: "9 Oak Ave", City: "Springfield", State: "IL", ZipCode: "62701",
	}, nil
}
