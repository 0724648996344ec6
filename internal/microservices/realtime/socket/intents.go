package socket

import (
	"context"
	"encoding/json"
	"strings"

	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/realtime/broadcast"
	"festival-stall/internal/microservices/realtime/registry"
)

// Direct reply names.
const (
	ReplyAuthenticated = "authenticated"
	ReplyRoomJoined    = "room-joined"
	ReplyRoomLeft      = "room-left"
	ReplyHeartbeatAck  = "heartbeat-ack"
)

type session struct {
	conn   *conn
	client registry.Client
}

// actor names who did something: explicit value first, then the connection's role.
func (s session) actor(explicit string) string {
	if a := strings.TrimSpace(explicit); a != "" {
		return a
	}
	return string(s.client.Role)
}

type handlerFunc func(ctx context.Context, s session, raw json.RawMessage) (string, any, error)

type route struct {
	auth   bool
	handle handlerFunc
}

// typed decodes the frame payload into T before calling fn. An absent payload decodes as the zero value.
func typed[T any](fn func(ctx context.Context, s session, in T) (string, any, error)) handlerFunc {
	return func(ctx context.Context, s session, raw json.RawMessage) (string, any, error) {
		var in T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", nil, domain.Invalid("data", "malformed payload: %v", err)
			}
		}
		return fn(ctx, s, in)
	}
}

type authenticateIn struct {
	Role string `json:"role"`
}

type roomIn struct {
	Name string `json:"name"`
}

type orderStatusIn struct {
	OrderID       int64                `json:"order_id"`
	Status        domain.OrderStatus   `json:"status"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	CancelReason  string               `json:"cancel_reason"`
	Actor         string               `json:"actor"`
}

type orderRefIn struct {
	OrderID int64  `json:"order_id"`
	Actor   string `json:"actor"`
}

type stockUpdateIn struct {
	ProductID int64 `json:"product_id"`
	domain.StockUpdateRequest
}

type emergencyIn struct {
	Message string `json:"message"`
}

type statsOut struct {
	registry.Stats
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

func (g *Gateway) buildRoutes() map[string]route {
	return map[string]route{
		"authenticate": {handle: typed(g.authenticate)},
		"join-room":    {handle: typed(g.joinRoom)},
		"leave-room":   {handle: typed(g.leaveRoom)},
		"heartbeat":    {handle: typed(g.heartbeat)},

		"new-order":           {auth: true, handle: typed(g.newOrder)},
		"order-status-update": {auth: true, handle: typed(g.orderStatus)},
		"cooking-start":       {auth: true, handle: typed(g.cookingStart)},
		"cooking-complete":    {auth: true, handle: typed(g.cookingComplete)},
		"stock-update":        {auth: true, handle: typed(g.stockUpdate)},
		"emergency-start":     {auth: true, handle: typed(g.emergencyStart)},
		"emergency-end":       {auth: true, handle: typed(g.emergencyEnd)},
		"request-stats":       {auth: true, handle: typed(g.requestStats)},
	}
}

func (g *Gateway) authenticate(_ context.Context, s session, in authenticateIn) (string, any, error) {
	role, err := registry.ParseRole(in.Role)
	if err != nil {
		return "", nil, err
	}
	if err := g.reg.Authenticate(s.conn.id, role); err != nil {
		return "", nil, err
	}
	g.lg.Info("socket_authenticated", map[string]any{"connection_id": s.conn.id, "role": role})
	return ReplyAuthenticated, map[string]any{"id": s.conn.id, "role": role, "room": role.Room()}, nil
}

func (g *Gateway) joinRoom(_ context.Context, s session, in roomIn) (string, any, error) {
	if err := g.reg.Join(s.conn.id, in.Name); err != nil {
		return "", nil, err
	}
	return ReplyRoomJoined, roomIn{Name: strings.TrimSpace(in.Name)}, nil
}

func (g *Gateway) leaveRoom(_ context.Context, s session, in roomIn) (string, any, error) {
	if err := g.reg.Leave(s.conn.id, in.Name); err != nil {
		return "", nil, err
	}
	return ReplyRoomLeft, roomIn{Name: strings.TrimSpace(in.Name)}, nil
}

func (g *Gateway) heartbeat(context.Context, session, struct{}) (string, any, error) {
	return ReplyHeartbeatAck, map[string]any{"at": g.now().UTC()}, nil
}

// Order and stock intents reply through the broadcast their commit triggers.

func (g *Gateway) newOrder(ctx context.Context, s session, in domain.CreateOrderRequest) (string, any, error) {
	in.Actor = s.actor(in.Actor)
	_, err := g.orders.CreateOrder(ctx, in)
	return "", nil, err
}

func (g *Gateway) orderStatus(ctx context.Context, s session, in orderStatusIn) (string, any, error) {
	_, err := g.orders.UpdateStatus(ctx, in.OrderID, domain.UpdateStatusRequest{
		Status:        in.Status,
		PaymentStatus: in.PaymentStatus,
		CancelReason:  in.CancelReason,
		Actor:         s.actor(in.Actor),
	})
	return "", nil, err
}

func (g *Gateway) cookingStart(ctx context.Context, s session, in orderRefIn) (string, any, error) {
	_, err := g.orders.StartCooking(ctx, in.OrderID, s.actor(in.Actor))
	return "", nil, err
}

func (g *Gateway) cookingComplete(ctx context.Context, s session, in orderRefIn) (string, any, error) {
	_, err := g.orders.CompleteCooking(ctx, in.OrderID, s.actor(in.Actor))
	return "", nil, err
}

func (g *Gateway) stockUpdate(ctx context.Context, s session, in stockUpdateIn) (string, any, error) {
	req := in.StockUpdateRequest
	req.Actor = s.actor(req.Actor)
	_, err := g.stock.Apply(ctx, in.ProductID, req)
	return "", nil, err
}

func (g *Gateway) emergencyStart(ctx context.Context, s session, in emergencyIn) (string, any, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return "", nil, domain.Invalid("message", "message is required")
	}
	g.lg.Warn("emergency_started", map[string]any{"by": s.actor(""), "message": msg})
	g.pub.Publish(ctx, domain.EmergencyStarted{Message: msg, StartedBy: s.actor(""), At: g.now().UTC()})
	return "", nil, nil
}

func (g *Gateway) emergencyEnd(ctx context.Context, s session, _ struct{}) (string, any, error) {
	g.lg.Info("emergency_ended", map[string]any{"by": s.actor("")})
	g.pub.Publish(ctx, domain.EmergencyEnded{EndedBy: s.actor(""), At: g.now().UTC()})
	return "", nil, nil
}

func (g *Gateway) requestStats(context.Context, session, struct{}) (string, any, error) {
	return broadcast.EventStatsUpdate, statsOut{
		Stats:     g.reg.Stats(),
		Delivered: g.bc.Delivered(),
		Dropped:   g.bc.Dropped(),
	}, nil
}
