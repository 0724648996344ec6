package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/realtime/broadcast"
	"festival-stall/internal/microservices/realtime/registry"
	stock "festival-stall/internal/microservices/stock/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

type OrderCommands interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, req domain.UpdateStatusRequest) (*domain.Order, error)
	StartCooking(ctx context.Context, id int64, actor string) (*domain.Order, error)
	CompleteCooking(ctx context.Context, id int64, actor string) (*domain.Order, error)
}

type StockCommands interface {
	Apply(ctx context.Context, productID int64, req domain.StockUpdateRequest) (*stock.Change, error)
}

type Options struct {
	SendBuffer    int
	PingInterval  time.Duration
	WriteWait     time.Duration
	ReadLimit     int64
	IntentTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.IntentTimeout <= 0 {
		o.IntentTimeout = 10 * time.Second
	}
	return o
}

type Deps struct {
	Registry    registry.Registry
	Broadcaster *broadcast.Broadcaster
	// Publisher carries intents that are pure notifications (emergencies).
	// Defaults to Broadcaster; set it to the cross-process relay when one runs.
	Publisher domain.Publisher
	Orders    OrderCommands
	Stock     StockCommands
	Logger    *logger.Logger
	Options   Options
}

// Gateway upgrades HTTP requests to sockets and dispatches client intents.
type Gateway struct {
	reg    registry.Registry
	bc     *broadcast.Broadcaster
	pub    domain.Publisher
	orders OrderCommands
	stock  StockCommands
	lg     *logger.Logger
	opts   Options
	routes map[string]route
	now    func() time.Time

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*conn
}

func NewGateway(d Deps) *Gateway {
	g := &Gateway{
		reg:    d.Registry,
		bc:     d.Broadcaster,
		pub:    d.Publisher,
		orders: d.Orders,
		stock:  d.Stock,
		lg:     d.Logger,
		opts:   d.Options.withDefaults(),
		now:    time.Now,
		conns:  make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// screens are served from other origins on the stall network
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if g.pub == nil {
		g.pub = d.Broadcaster
	}
	if g.lg == nil {
		g.lg = logger.NewNop()
	}
	g.routes = g.buildRoutes()
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		g.lg.Warn("socket_upgrade_failed", map[string]any{"error": err.Error(), "remote": r.RemoteAddr})
		return
	}
	c := newConn(uuid.NewString(), ws, g.opts.SendBuffer)

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	g.reg.Add(c.id, c)
	g.lg.Info("socket_connected", map[string]any{"connection_id": c.id, "remote": r.RemoteAddr})

	go c.writeLoop(g.opts.PingInterval, g.opts.WriteWait)
	g.readLoop(context.WithoutCancel(r.Context()), c)

	c.shutdown()
	g.reg.Remove(c.id)
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
	g.lg.Info("socket_disconnected", map[string]any{"connection_id": c.id})
}

// Shutdown closes every open socket.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		c.shutdown()
	}
}

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorReply struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (g *Gateway) readLoop(ctx context.Context, c *conn) {
	pongWait := 2 * g.opts.PingInterval
	c.ws.SetReadLimit(g.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		g.reg.Touch(c.id)
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.lg.Debug("socket_read_closed", map[string]any{"connection_id": c.id, "error": err.Error()})
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		g.reg.Touch(c.id)

		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			g.replyError(c, "", domain.Invalid("event", "malformed frame"))
			continue
		}
		g.dispatch(ctx, c, in)
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *conn, in inbound) {
	rt, ok := g.routes[in.Event]
	if !ok {
		g.replyError(c, in.Event, domain.Invalid("event", "unknown event %q", in.Event))
		return
	}
	client, _ := g.reg.Lookup(c.id)
	if rt.auth && client.Role == "" {
		g.replyError(c, in.Event, domain.ErrUnauthenticated)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.IntentTimeout)
	defer cancel()
	ctx, span := tracing.Tracer().Start(ctx, "socket."+in.Event)
	defer span.End()
	span.SetAttributes(attribute.String("connection.id", c.id), attribute.String("connection.role", string(client.Role)))

	reply, data, err := rt.handle(ctx, session{conn: c, client: client}, in.Data)
	if err != nil {
		span.RecordError(err)
		g.replyError(c, in.Event, err)
		return
	}
	if reply != "" {
		if err := g.bc.Direct(c, reply, data); err != nil {
			g.lg.Error("socket_reply_failed", err, map[string]any{"connection_id": c.id, "event": reply})
		}
	}
}

func (g *Gateway) replyError(c *conn, event string, err error) {
	kind := domain.Kind(err)
	msg := err.Error()
	if kind == "infrastructure" || kind == "internal" {
		g.lg.Error("socket_intent_failed", err, map[string]any{"connection_id": c.id, "event": event})
		msg = "the request could not be completed, retry later"
	}
	if derr := g.bc.Direct(c, "error", errorReply{Kind: kind, Message: msg}); derr != nil {
		g.lg.Error("socket_reply_failed", derr, map[string]any{"connection_id": c.id})
	}
}
