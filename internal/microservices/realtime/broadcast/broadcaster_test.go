package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/realtime/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
	full   bool
}

func (r *recorder) Deliver(msg []byte) bool {
	if r.full {
		return false
	}
	var env struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return false
	}
	r.mu.Lock()
	r.events = append(r.events, env.Event)
	r.mu.Unlock()
	return true
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	reg   *registry.MemoryRegistry
	b     *Broadcaster
	sinks map[registry.Role]*recorder
	anon  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reg: registry.NewMemoryRegistry(), sinks: map[registry.Role]*recorder{}, anon: &recorder{}}
	f.b = New(f.reg, nil, logger.NewNop())
	for _, role := range []registry.Role{
		registry.RoleCustomer, registry.RoleKitchen, registry.RoleCashier,
		registry.RolePickup, registry.RoleAdmin, registry.RoleMonitoring,
	} {
		s := &recorder{}
		f.sinks[role] = s
		f.reg.Add(string(role), s)
		require.NoError(t, f.reg.Authenticate(string(role), role))
	}
	f.reg.Add("anon", f.anon)
	return f
}

func statusChange(to domain.OrderStatus) domain.OrderStatusChanged {
	return domain.OrderStatusChanged{Order: domain.Order{ID: 1, Status: to}, From: domain.StatusReceived, To: to}
}

func TestOrderPlacedRouting(t *testing.T) {
	f := newFixture(t)
	f.b.Publish(context.Background(), domain.OrderPlaced{Order: domain.Order{ID: 7}})

	assert.Equal(t, []string{EventNewOrder, EventNewOrderNotification}, f.sinks[registry.RoleKitchen].got())
	assert.Equal(t, []string{EventNewOrder}, f.sinks[registry.RoleCashier].got())
	assert.Equal(t, []string{EventNewOrder}, f.anon.got())
}

func TestStatusChangeRouting(t *testing.T) {
	f := newFixture(t)
	f.b.Publish(context.Background(), statusChange(domain.StatusCooking))

	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleAdmin].got())
	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleMonitoring].got())
	assert.Equal(t, []string{EventCookingStarted}, f.sinks[registry.RoleKitchen].got())
	assert.Empty(t, f.sinks[registry.RoleCustomer].got())
	assert.Empty(t, f.anon.got())
}

func TestReadyReachesPickupAndCashierOnce(t *testing.T) {
	f := newFixture(t)
	f.b.Publish(context.Background(), statusChange(domain.StatusReady))

	assert.Equal(t, []string{EventOrderStatusChanged, EventCookingCompleted}, f.sinks[registry.RoleCashier].got())
	assert.Equal(t, []string{EventCookingCompleted}, f.sinks[registry.RolePickup].got())
}

func TestPaymentOnlyChangeDoesNotReannounceCooking(t *testing.T) {
	f := newFixture(t)
	paid := domain.OrderStatusChanged{
		Order: domain.Order{ID: 1, Status: domain.StatusCooking, PaymentStatus: domain.PaymentPaid},
		From:  domain.StatusCooking,
		To:    domain.StatusCooking,
	}
	f.b.Publish(context.Background(), paid)

	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleCashier].got())
	assert.Empty(t, f.sinks[registry.RoleKitchen].got())
	assert.Empty(t, f.sinks[registry.RolePickup].got())
	assert.Empty(t, f.anon.got())
}

func TestPaymentOnReadyOrderReachesPickupAsStatusChange(t *testing.T) {
	f := newFixture(t)
	paid := domain.OrderStatusChanged{
		Order: domain.Order{ID: 1, Status: domain.StatusReady, PaymentStatus: domain.PaymentPaid},
		From:  domain.StatusReady,
		To:    domain.StatusReady,
	}
	f.b.Publish(context.Background(), paid)

	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RolePickup].got())
	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleCashier].got())
	assert.Empty(t, f.sinks[registry.RoleKitchen].got())
	assert.Empty(t, f.sinks[registry.RoleCustomer].got())
}

func TestTerminalStatusIsGlobalAndNotDuplicated(t *testing.T) {
	f := newFixture(t)
	f.b.Publish(context.Background(), statusChange(domain.StatusPickedUp))

	// admin matches both the room route and the global route for the same event
	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleAdmin].got())
	assert.Equal(t, []string{EventOrderStatusChanged}, f.sinks[registry.RoleCustomer].got())
	assert.Equal(t, []string{EventOrderStatusChanged}, f.anon.got())
}

func TestMultiRoomConnectionGetsEventOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Join(string(registry.RoleCashier), registry.RolePickup.Room()))

	f.b.Publish(context.Background(), statusChange(domain.StatusReady))
	assert.Equal(t, []string{EventOrderStatusChanged, EventCookingCompleted}, f.sinks[registry.RoleCashier].got())
}

func TestStockEvents(t *testing.T) {
	f := newFixture(t)
	p := domain.Product{ID: 3, StockQuantity: 0}
	f.b.Publish(context.Background(), domain.StockUpdated{Product: p})
	alert, ok := domain.AlertFor(p)
	require.True(t, ok)
	f.b.Publish(context.Background(), alert)

	assert.Equal(t, []string{EventStockUpdated, EventStockAlert}, f.sinks[registry.RoleKitchen].got())
	assert.Equal(t, []string{EventStockUpdated, EventStockAlert}, f.sinks[registry.RoleAdmin].got())
	assert.Equal(t, []string{EventStockUpdated}, f.sinks[registry.RolePickup].got())
}

func TestEmergencyIsGlobal(t *testing.T) {
	f := newFixture(t)
	f.b.Publish(context.Background(), domain.EmergencyStarted{Message: "gas leak"})
	f.b.Publish(context.Background(), domain.EmergencyEnded{})

	assert.Equal(t, []string{EventEmergencyStarted, EventEmergencyEnded}, f.anon.got())
	assert.Equal(t, []string{EventEmergencyStarted, EventEmergencyEnded}, f.sinks[registry.RoleCustomer].got())
}

func TestFullSinkIsCountedAsDropped(t *testing.T) {
	f := newFixture(t)
	f.anon.full = true
	f.b.Publish(context.Background(), domain.EmergencyEnded{})

	assert.EqualValues(t, 1, f.b.Dropped())
	assert.EqualValues(t, 6, f.b.Delivered())
}

func TestEncodeEnvelope(t *testing.T) {
	msg, err := Encode(EventStatsUpdate, map[string]int{"connections": 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"stats-update","data":{"connections":2}}`, string(msg))
}
