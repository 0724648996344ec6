package domain

import (
	"context"
	"time"
)

type EventKind string

const (
	KindOrderPlaced        EventKind = "order.placed"
	KindOrderStatusChanged EventKind = "order.status_changed"
	KindStockUpdated       EventKind = "stock.updated"
	KindStockAlert         EventKind = "stock.alert"
	KindEmergencyStarted   EventKind = "emergency.started"
	KindEmergencyEnded     EventKind = "emergency.ended"
)

type Event interface {
	EventKind() EventKind
}

// Publisher fans a committed domain event out to live clients. Fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

type OrderPlaced struct {
	Order Order `json:"order"`
}

type OrderStatusChanged struct {
	Order Order       `json:"order"`
	From  OrderStatus `json:"from"`
	To    OrderStatus `json:"to"`
}

type StockUpdated struct {
	Product Product       `json:"product"`
	Log     StockLogEntry `json:"log"`
}

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type StockAlert struct {
	Product  Product       `json:"product"`
	Severity AlertSeverity `json:"severity"`
}

type EmergencyStarted struct {
	Message   string    `json:"message"`
	StartedBy string    `json:"started_by"`
	At        time.Time `json:"at"`
}

type EmergencyEnded struct {
	EndedBy string    `json:"ended_by"`
	At      time.Time `json:"at"`
}

func (OrderPlaced) EventKind() EventKind        { return KindOrderPlaced }
func (OrderStatusChanged) EventKind() EventKind { return KindOrderStatusChanged }
func (StockUpdated) EventKind() EventKind       { return KindStockUpdated }
func (StockAlert) EventKind() EventKind         { return KindStockAlert }
func (EmergencyStarted) EventKind() EventKind   { return KindEmergencyStarted }
func (EmergencyEnded) EventKind() EventKind     { return KindEmergencyEnded }

// AlertFor returns the low-stock alert a quantity warrants, if any.
func AlertFor(p Product) (StockAlert, bool) {
	switch {
	case p.StockQuantity == 0:
		return StockAlert{Product: p, Severity: SeverityCritical}, true
	case p.StockQuantity > 0 && p.StockQuantity <= p.LowStockThreshold:
		return StockAlert{Product: p, Severity: SeverityWarning}, true
	}
	return StockAlert{}, false
}
