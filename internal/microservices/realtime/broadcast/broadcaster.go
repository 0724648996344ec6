package broadcast

import (
	"context"
	"sync/atomic"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"
	"festival-stall/internal/microservices/realtime/registry"

	"go.opentelemetry.io/otel/attribute"
)

// Broadcaster delivers domain events to the connections in the local registry.
type Broadcaster struct {
	reg     registry.Registry
	catalog Catalog
	lg      *logger.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

var _ domain.Publisher = (*Broadcaster)(nil)

func New(reg registry.Registry, catalog Catalog, lg *logger.Logger) *Broadcaster {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Broadcaster{reg: reg, catalog: catalog, lg: lg}
}

type delivery struct {
	global bool
	rooms  []string
	data   any
}

// Publish is at-most-once: a connection whose buffer is full loses the message.
func (b *Broadcaster) Publish(ctx context.Context, ev domain.Event) {
	_, span := tracing.Tracer().Start(ctx, "broadcast.publish")
	defer span.End()
	span.SetAttributes(attribute.String("event.kind", string(ev.EventKind())))

	routes := b.catalog.Routes(ev)
	if len(routes) == 0 {
		b.lg.Debug("broadcast_unrouted", map[string]any{"kind": ev.EventKind()})
		return
	}

	// a server event reaches each connection once even when routes overlap
	order := make([]string, 0, len(routes))
	merged := make(map[string]*delivery, len(routes))
	for _, r := range routes {
		d, ok := merged[r.Event]
		if !ok {
			d = &delivery{data: r.Data}
			merged[r.Event] = d
			order = append(order, r.Event)
		}
		d.global = d.global || r.Audience.Global
		d.rooms = append(d.rooms, r.Audience.Rooms...)
	}

	for _, name := range order {
		d := merged[name]
		msg, err := Encode(name, d.data)
		if err != nil {
			b.lg.Error("broadcast_encode_failed", err, map[string]any{"event": name})
			continue
		}
		var members []registry.Member
		if d.global {
			members = b.reg.All()
		} else {
			members = b.reg.Members(d.rooms...)
		}
		sent, lost := b.fanout(members, msg)
		b.lg.Debug("broadcast_sent", map[string]any{"event": name, "delivered": sent, "dropped": lost})
	}
}

// Direct sends one frame to a single connection.
func (b *Broadcaster) Direct(sink registry.Sink, event string, data any) error {
	msg, err := Encode(event, data)
	if err != nil {
		return err
	}
	b.fanout([]registry.Member{{Sink: sink}}, msg)
	return nil
}

func (b *Broadcaster) Delivered() int64 { return b.delivered.Load() }
func (b *Broadcaster) Dropped() int64   { return b.dropped.Load() }

func (b *Broadcaster) fanout(members []registry.Member, msg []byte) (sent, lost int) {
	for _, m := range members {
		if m.Sink.Deliver(msg) {
			sent++
			continue
		}
		lost++
		b.lg.Warn("broadcast_dropped", map[string]any{"connection_id": m.ID})
	}
	b.delivered.Add(int64(sent))
	b.dropped.Add(int64(lost))
	return sent, lost
}
