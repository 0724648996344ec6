package socket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/order/service"
	"festival-stall/internal/microservices/realtime/broadcast"
	"festival-stall/internal/microservices/realtime/registry"
	stock "festival-stall/internal/microservices/stock/service"
	"festival-stall/internal/repository"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	srv     *httptest.Server
	reg     *registry.MemoryRegistry
	store   *repository.Memory
	product domain.Product
}

func newStack(t *testing.T) *stack {
	t.Helper()
	lg := logger.NewNop()
	store := repository.NewMemory()
	reg := registry.NewMemoryRegistry()
	bc := broadcast.New(reg, nil, lg)
	ledger := stock.NewStockService(store, store, bc, lg)
	orders := service.NewOrderService(service.Deps{Store: store, Tx: store, Stock: ledger, Pub: bc, Logger: lg})

	gw := NewGateway(Deps{Registry: reg, Broadcaster: bc, Orders: orders, Stock: ledger, Logger: lg})
	srv := httptest.NewServer(gw)
	t.Cleanup(func() {
		gw.Shutdown()
		srv.Close()
	})

	p := store.AddProduct(domain.Product{
		Name: "Takoyaki", Price: decimal.NewFromInt(500), CookingTime: 6,
		StockQuantity: 3, LowStockThreshold: 1, AutoDisableOnZero: true,
	})
	return &stack{srv: srv, reg: reg, store: store, product: p}
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func (s *stack) dial(t *testing.T) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(map[string]any{"event": event, "data": data}))
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// expect reads frames until one named event arrives, skipping the rest.
func (c *client) expect(event string) frame {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(c.t, c.ws.SetReadDeadline(deadline))
		var f frame
		require.NoError(c.t, c.ws.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f
		}
	}
}

func (c *client) login(role registry.Role) {
	c.t.Helper()
	c.send("authenticate", map[string]string{"role": string(role)})
	c.expect(ReplyAuthenticated)
}

func TestAuthenticateAndRooms(t *testing.T) {
	s := newStack(t)
	c := s.dial(t)

	c.send("authenticate", map[string]string{"role": "kitchen"})
	f := c.expect(ReplyAuthenticated)
	var auth struct {
		ID   string `json:"id"`
		Room string `json:"room"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &auth))
	assert.Equal(t, "kitchen", auth.Room)

	c.send("join-room", map[string]string{"name": "vip"})
	c.expect(ReplyRoomJoined)
	client, ok := s.reg.Lookup(auth.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"kitchen", "vip"}, client.Rooms)

	c.send("leave-room", map[string]string{"name": "vip"})
	c.expect(ReplyRoomLeft)

	c.send("heartbeat", nil)
	c.expect(ReplyHeartbeatAck)
}

func TestIntentsRequireAuthentication(t *testing.T) {
	s := newStack(t)
	c := s.dial(t)

	c.send("request-stats", nil)
	var e errorReply
	require.NoError(t, json.Unmarshal(c.expect("error").Data, &e))
	assert.Equal(t, "unauthenticated", e.Kind)

	c.send("authenticate", map[string]string{"role": "chef"})
	require.NoError(t, json.Unmarshal(c.expect("error").Data, &e))
	assert.Equal(t, "validation", e.Kind)

	c.send("dance", nil)
	require.NoError(t, json.Unmarshal(c.expect("error").Data, &e))
	assert.Equal(t, "validation", e.Kind)
}

func TestOrderFlowReachesRoles(t *testing.T) {
	s := newStack(t)
	kitchen := s.dial(t)
	kitchen.login(registry.RoleKitchen)
	cashier := s.dial(t)
	cashier.login(registry.RoleCashier)
	pickup := s.dial(t)
	pickup.login(registry.RolePickup)

	cashier.send("new-order", domain.CreateOrderRequest{
		Items:         []domain.CreateOrderItem{{ProductID: s.product.ID, Quantity: 1}},
		PaymentMethod: domain.PaymentCash,
	})
	var placed domain.Order
	require.NoError(t, json.Unmarshal(kitchen.expect(broadcast.EventNewOrderNotification).Data, &placed))
	assert.Equal(t, domain.StatusReceived, placed.Status)
	cashier.expect(broadcast.EventNewOrder)

	kitchen.send("cooking-start", map[string]int64{"order_id": placed.ID})
	kitchen.expect(broadcast.EventCookingStarted)

	kitchen.send("cooking-complete", map[string]int64{"order_id": placed.ID})
	var ready domain.Order
	require.NoError(t, json.Unmarshal(pickup.expect(broadcast.EventCookingCompleted).Data, &ready))
	assert.Equal(t, domain.StatusReady, ready.Status)
	assert.NotNil(t, ready.CookingCompletedAt)

	// picking up an unpaid order is refused and only the caller hears about it
	pickup.send("order-status-update", map[string]any{"order_id": placed.ID, "status": "picked_up"})
	var e errorReply
	require.NoError(t, json.Unmarshal(pickup.expect("error").Data, &e))
	assert.Equal(t, "invalid_transition", e.Kind)
}

func TestStockUpdateAndAlerts(t *testing.T) {
	s := newStack(t)
	admin := s.dial(t)
	admin.login(registry.RoleAdmin)

	admin.send("stock-update", map[string]any{
		"product_id": s.product.ID, "change_type": "set", "quantity": 0, "reason": "spilled",
	})
	var upd domain.StockUpdated
	require.NoError(t, json.Unmarshal(admin.expect(broadcast.EventStockUpdated).Data, &upd))
	assert.Equal(t, domain.ProductOutOfStock, upd.Product.Status)

	var alert domain.StockAlert
	require.NoError(t, json.Unmarshal(admin.expect(broadcast.EventStockAlert).Data, &alert))
	assert.Equal(t, domain.SeverityCritical, alert.Severity)
}

func TestEmergencyAndStats(t *testing.T) {
	s := newStack(t)
	admin := s.dial(t)
	admin.login(registry.RoleAdmin)
	guest := s.dial(t)
	guest.login(registry.RoleCustomer)

	admin.send("emergency-start", map[string]string{"message": ""})
	var e errorReply
	require.NoError(t, json.Unmarshal(admin.expect("error").Data, &e))
	assert.Equal(t, "validation", e.Kind)

	admin.send("emergency-start", map[string]string{"message": "evacuate"})
	var started domain.EmergencyStarted
	require.NoError(t, json.Unmarshal(guest.expect(broadcast.EventEmergencyStarted).Data, &started))
	assert.Equal(t, "evacuate", started.Message)
	assert.Equal(t, "admin", started.StartedBy)

	admin.send("request-stats", nil)
	var stats statsOut
	require.NoError(t, json.Unmarshal(admin.expect(broadcast.EventStatsUpdate).Data, &stats))
	assert.Equal(t, 2, stats.Connections)
	assert.Equal(t, 1, stats.ByRole[registry.RoleCustomer])
}

func TestDisconnectPurgesRegistry(t *testing.T) {
	s := newStack(t)
	c := s.dial(t)
	c.login(registry.RoleMonitoring)
	require.Equal(t, 1, s.reg.Stats().Connections)

	require.NoError(t, c.ws.Close())
	assert.Eventually(t, func() bool { return s.reg.Stats().Connections == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.NotContains(t, s.reg.Stats().Rooms, "monitoring")
}

func TestFullBufferDropsAndCloses(t *testing.T) {
	c := newConn("slow", nil, 1)

	assert.True(t, c.Deliver([]byte("a")))
	assert.False(t, c.Deliver([]byte("b")))
	select {
	case <-c.done:
	default:
		t.Fatal("connection should be closed after overflow")
	}
	assert.False(t, c.Deliver([]byte("c")))
}
