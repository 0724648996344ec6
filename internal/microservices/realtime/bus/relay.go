package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	HeaderOrigin = "x-origin"
	HeaderKind   = "x-event-kind"
)

// Broker is the part of the AMQP client the relay needs.
type Broker interface {
	DeclareFanout(name string) error
	Subscribe(exchange, consumer string) (<-chan amqp.Delivery, error)
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table, contentType string, persistent bool) error
}

type wireEvent struct {
	Kind    domain.EventKind `json:"kind"`
	Payload json.RawMessage  `json:"payload"`
}

func Encode(ev domain.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Kind: ev.EventKind(), Payload: payload})
}

func Decode(body []byte) (domain.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch w.Kind {
	case domain.KindOrderPlaced:
		return decodeAs[domain.OrderPlaced](w.Payload)
	case domain.KindOrderStatusChanged:
		return decodeAs[domain.OrderStatusChanged](w.Payload)
	case domain.KindStockUpdated:
		return decodeAs[domain.StockUpdated](w.Payload)
	case domain.KindStockAlert:
		return decodeAs[domain.StockAlert](w.Payload)
	case domain.KindEmergencyStarted:
		return decodeAs[domain.EmergencyStarted](w.Payload)
	case domain.KindEmergencyEnded:
		return decodeAs[domain.EmergencyEnded](w.Payload)
	}
	return nil, fmt.Errorf("unknown event kind %q", w.Kind)
}

func decodeAs[T domain.Event](payload json.RawMessage) (domain.Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return ev, nil
}

type outbound struct {
	ctx context.Context
	ev  domain.Event
}

// Relay delivers every event locally and shares it with the other stall processes
// through a fanout exchange. Events coming back from the exchange are delivered
// locally unless this instance sent them.
type Relay struct {
	local    domain.Publisher
	broker   Broker
	exchange string
	origin   string
	lg       *logger.Logger
	out      chan outbound
	timeout  time.Duration
}

var _ domain.Publisher = (*Relay)(nil)

func NewRelay(local domain.Publisher, broker Broker, exchange, origin string, lg *logger.Logger) *Relay {
	return &Relay{
		local:    local,
		broker:   broker,
		exchange: exchange,
		origin:   origin,
		lg:       lg,
		out:      make(chan outbound, 256),
		timeout:  5 * time.Second,
	}
}

// Publish never blocks on the broker; when the outbound queue is full the
// remote copy is dropped and only local clients see the event.
func (r *Relay) Publish(ctx context.Context, ev domain.Event) {
	r.local.Publish(ctx, ev)
	select {
	case r.out <- outbound{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		r.lg.Warn("relay_outbound_full", map[string]any{"kind": ev.EventKind()})
	}
}

// Run declares the exchange, consumes it, and drains the outbound queue until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.broker.DeclareFanout(r.exchange); err != nil {
		return fmt.Errorf("declare %s: %w", r.exchange, err)
	}
	deliveries, err := r.broker.Subscribe(r.exchange, "stall-"+r.origin)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.exchange, err)
	}
	r.lg.Info("relay_started", map[string]any{"exchange": r.exchange, "origin": r.origin})

	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-r.out:
			r.send(o)
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("relay: delivery channel closed")
			}
			r.receive(ctx, d)
		}
	}
}

func (r *Relay) send(o outbound) {
	body, err := Encode(o.ev)
	if err != nil {
		r.lg.Error("relay_encode_failed", err, map[string]any{"kind": o.ev.EventKind()})
		return
	}
	ctx, span := tracing.Tracer().Start(o.ctx, "relay.send", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("event.kind", string(o.ev.EventKind())))

	headers := tracing.InjectAMQPHeaders(ctx, amqp.Table{
		HeaderOrigin: r.origin,
		HeaderKind:   string(o.ev.EventKind()),
	})
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.broker.Publish(ctx, r.exchange, "", body, headers, "application/json", false); err != nil {
		span.RecordError(err)
		r.lg.Error("relay_publish_failed", err, map[string]any{"kind": o.ev.EventKind()})
	}
}

func (r *Relay) receive(ctx context.Context, d amqp.Delivery) {
	if origin, _ := d.Headers[HeaderOrigin].(string); origin == r.origin {
		return
	}
	ctx = tracing.ExtractAMQPHeaders(ctx, d.Headers)
	ctx, span := tracing.Tracer().Start(ctx, "relay.receive", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	ev, err := Decode(d.Body)
	if err != nil {
		span.RecordError(err)
		r.lg.Warn("relay_decode_failed", map[string]any{"error": err.Error(), "message_id": d.MessageId})
		return
	}
	span.SetAttributes(attribute.String("event.kind", string(ev.EventKind())))
	r.local.Publish(ctx, ev)
}
