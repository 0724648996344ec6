package broadcast

import (
	"encoding/json"

	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/realtime/registry"
)

// Server event names seen by socket clients.
const (
	EventNewOrder             = "new-order"
	EventNewOrderNotification = "new-order-notification"
	EventOrderStatusChanged   = "order-status-changed"
	EventCookingStarted       = "cooking-started-notification"
	EventCookingCompleted     = "cooking-completed-notification"
	EventStockUpdated         = "stock-updated-notification"
	EventStockAlert           = "stock-alert-notification"
	EventEmergencyStarted     = "emergency-started"
	EventEmergencyEnded       = "emergency-ended"
	EventStatsUpdate          = "stats-update"
)

// Envelope is the frame written to a socket.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Audience is either every connection or the union of some rooms.
type Audience struct {
	Global bool
	Rooms  []string
}

func Everyone() Audience { return Audience{Global: true} }

func Rooms(roles ...registry.Role) Audience {
	a := Audience{Rooms: make([]string, 0, len(roles))}
	for _, r := range roles {
		a.Rooms = append(a.Rooms, r.Room())
	}
	return a
}

type Route struct {
	Event    string
	Audience Audience
	Data     any
}

// Catalog maps a domain event kind to the deliveries it produces.
type Catalog map[domain.EventKind]func(domain.Event) []Route

func (c Catalog) Routes(ev domain.Event) []Route {
	fn, ok := c[ev.EventKind()]
	if !ok {
		return nil
	}
	return fn(ev)
}

func DefaultCatalog() Catalog {
	return Catalog{
		domain.KindOrderPlaced: func(ev domain.Event) []Route {
			e := ev.(domain.OrderPlaced)
			return []Route{
				{Event: EventNewOrder, Audience: Everyone(), Data: e.Order},
				{Event: EventNewOrderNotification, Audience: Rooms(registry.RoleKitchen), Data: e.Order},
			}
		},
		domain.KindOrderStatusChanged: func(ev domain.Event) []Route {
			e := ev.(domain.OrderStatusChanged)
			routes := []Route{{
				Event:    EventOrderStatusChanged,
				Audience: Rooms(registry.RoleAdmin, registry.RoleCashier, registry.RoleMonitoring),
				Data:     e,
			}}
			if e.From == e.To {
				// payment-only change; pickup still needs it to hand over a ready order
				if e.To == domain.StatusReady {
					routes = append(routes, Route{Event: EventOrderStatusChanged, Audience: Rooms(registry.RolePickup), Data: e})
				}
				return routes
			}
			switch e.To {
			case domain.StatusCooking:
				routes = append(routes, Route{Event: EventCookingStarted, Audience: Rooms(registry.RoleKitchen), Data: e.Order})
			case domain.StatusReady:
				routes = append(routes, Route{Event: EventCookingCompleted, Audience: Rooms(registry.RolePickup, registry.RoleCashier), Data: e.Order})
			case domain.StatusPickedUp, domain.StatusCancelled:
				routes = append(routes, Route{Event: EventOrderStatusChanged, Audience: Everyone(), Data: e})
			}
			return routes
		},
		domain.KindStockUpdated: func(ev domain.Event) []Route {
			return []Route{{Event: EventStockUpdated, Audience: Everyone(), Data: ev}}
		},
		domain.KindStockAlert: func(ev domain.Event) []Route {
			return []Route{{Event: EventStockAlert, Audience: Rooms(registry.RoleAdmin, registry.RoleKitchen), Data: ev}}
		},
		domain.KindEmergencyStarted: func(ev domain.Event) []Route {
			return []Route{{Event: EventEmergencyStarted, Audience: Everyone(), Data: ev}}
		},
		domain.KindEmergencyEnded: func(ev domain.Event) []Route {
			return []Route{{Event: EventEmergencyEnded, Audience: Everyone(), Data: ev}}
		},
	}
}
