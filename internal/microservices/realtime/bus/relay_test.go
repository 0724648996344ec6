package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	body     []byte
	headers  amqp.Table
}

type fakeBroker struct {
	mu         sync.Mutex
	declared   []string
	sent       []published
	deliveries chan amqp.Delivery

	// unconfirmed publishes hold until their deadline, like a broker whose ack arrives too late
	unconfirmed int
	timedOut    int
}

func (b *fakeBroker) DeclareFanout(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared = append(b.declared, name)
	return nil
}

func (b *fakeBroker) Subscribe(string, string) (<-chan amqp.Delivery, error) {
	return b.deliveries, nil
}

func (b *fakeBroker) Publish(ctx context.Context, exchange, _ string, body []byte, headers amqp.Table, _ string, _ bool) error {
	b.mu.Lock()
	if b.unconfirmed > 0 {
		b.unconfirmed--
		b.mu.Unlock()
		<-ctx.Done()
		b.mu.Lock()
		b.timedOut++
		b.mu.Unlock()
		return ctx.Err()
	}
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{exchange: exchange, body: body, headers: headers})
	return nil
}

func (b *fakeBroker) published() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

type localSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *localSink) Publish(_ context.Context, ev domain.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *localSink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func startRelay(t *testing.T, origin string, opts ...func(*Relay, *fakeBroker)) (*Relay, *fakeBroker, *localSink) {
	t.Helper()
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 4)}
	local := &localSink{}
	r := NewRelay(local, broker, "stall.events", origin, logger.NewNop())
	for _, o := range opts {
		o(r, broker)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return r, broker, local
}

func TestDecodeRestoresConcreteEvent(t *testing.T) {
	in := domain.OrderStatusChanged{
		Order: domain.Order{ID: 4, OrderNumber: "ORD_20260801_120000_0001", Status: domain.StatusReady},
		From:  domain.StatusCooking,
		To:    domain.StatusReady,
	}
	body, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(body)
	require.NoError(t, err)
	got, ok := out.(domain.OrderStatusChanged)
	require.True(t, ok, "got %T", out)
	assert.Equal(t, in.To, got.To)
	assert.Equal(t, in.Order.OrderNumber, got.Order.OrderNumber)

	_, err = Decode([]byte(`{"kind":"order.eaten","payload":{}}`))
	assert.Error(t, err)
}

func TestPublishDeliversLocallyAndShares(t *testing.T) {
	r, broker, local := startRelay(t, "stall-a")

	r.Publish(context.Background(), domain.EmergencyEnded{EndedBy: "admin"})
	assert.Equal(t, 1, local.count())

	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 10*time.Millisecond)
	p := broker.published()[0]
	assert.Equal(t, "stall.events", p.exchange)
	assert.Equal(t, "stall-a", p.headers[HeaderOrigin])
	assert.Equal(t, string(domain.KindEmergencyEnded), p.headers[HeaderKind])
}

func TestRemoteEventsAreDeliveredOnce(t *testing.T) {
	_, broker, local := startRelay(t, "stall-a")

	body, err := Encode(domain.EmergencyStarted{Message: "power out", StartedBy: "admin"})
	require.NoError(t, err)

	broker.deliveries <- amqp.Delivery{Headers: amqp.Table{HeaderOrigin: "stall-a"}, Body: body}
	broker.deliveries <- amqp.Delivery{Headers: amqp.Table{HeaderOrigin: "stall-b"}, Body: []byte("{")}
	broker.deliveries <- amqp.Delivery{Headers: amqp.Table{HeaderOrigin: "stall-b"}, Body: body}

	require.Eventually(t, func() bool { return local.count() == 1 }, time.Second, 10*time.Millisecond)
	local.mu.Lock()
	ev := local.events[0]
	local.mu.Unlock()
	assert.Equal(t, domain.KindEmergencyStarted, ev.EventKind())
}

func TestLateConfirmDoesNotStallLaterEvents(t *testing.T) {
	r, broker, local := startRelay(t, "stall-a", func(r *Relay, b *fakeBroker) {
		r.timeout = 20 * time.Millisecond
		b.unconfirmed = 1
	})

	r.Publish(context.Background(), domain.EmergencyStarted{Message: "storm", StartedBy: "admin"})
	r.Publish(context.Background(), domain.EmergencyEnded{EndedBy: "admin"})
	assert.Equal(t, 2, local.count())

	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, string(domain.KindEmergencyEnded), broker.published()[0].headers[HeaderKind])
	broker.mu.Lock()
	assert.Equal(t, 1, broker.timedOut)
	broker.mu.Unlock()

	// the consumer side keeps flowing after the timed out publish
	body, err := Encode(domain.EmergencyEnded{EndedBy: "admin"})
	require.NoError(t, err)
	broker.deliveries <- amqp.Delivery{Headers: amqp.Table{HeaderOrigin: "stall-b"}, Body: body}
	require.Eventually(t, func() bool { return local.count() == 3 }, time.Second, 5*time.Millisecond)
}
