package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(status OrderStatus, pay PaymentStatus) *Order {
	return &Order{ID: 1, OrderNumber: "ORD_1", Status: status, PaymentStatus: pay}
}

func TestApplyFullLifecycleStampsEachTimestampOnce(t *testing.T) {
	o := newOrder(StatusReceived, PaymentUnpaid)
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		change StatusChange
		field  func(*Order) *time.Time
	}{
		{StatusChange{Status: StatusQueued}, func(o *Order) *time.Time { return o.QueuedAt }},
		{StatusChange{Status: StatusCooking}, func(o *Order) *time.Time { return o.CookingStartedAt }},
		{StatusChange{Status: StatusReady}, func(o *Order) *time.Time { return o.CookingCompletedAt }},
		{StatusChange{Status: StatusPickedUp, PaymentStatus: PaymentPaid}, func(o *Order) *time.Time { return o.PickedUpAt }},
	}

	var seen []time.Time
	for i, st := range steps {
		at := base.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, o.Apply(st.change, at))

		got := st.field(o)
		require.NotNil(t, got)
		assert.Equal(t, at, *got)
		seen = append(seen, at)

		// earlier stamps untouched
		for j := 0; j < i; j++ {
			assert.Equal(t, seen[j], *steps[j].field(o))
		}
	}
	assert.Equal(t, StatusPickedUp, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Nil(t, o.CancelledAt)
}

func TestApplyRejectsTerminalStates(t *testing.T) {
	now := time.Now()
	for _, st := range []OrderStatus{StatusPickedUp, StatusCancelled} {
		for _, target := range []OrderStatus{StatusReceived, StatusQueued, StatusCooking, StatusReady, StatusPickedUp, StatusCancelled} {
			o := newOrder(st, PaymentPaid)
			err := o.Apply(StatusChange{Status: target, CancelReason: "x"}, now)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", st, target)
			assert.Equal(t, st, o.Status)
		}
	}
}

func TestApplyRejectsRegression(t *testing.T) {
	o := newOrder(StatusCooking, PaymentUnpaid)
	err := o.Apply(StatusChange{Status: StatusQueued}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCooking, o.Status)
}

func TestApplyAllowsForwardSkip(t *testing.T) {
	o := newOrder(StatusReceived, PaymentUnpaid)
	require.NoError(t, o.Apply(StatusChange{Status: StatusCooking}, time.Now()))
	assert.Nil(t, o.QueuedAt)
	assert.NotNil(t, o.CookingStartedAt)
}

func TestApplyPickupRequiresReadyAndPaid(t *testing.T) {
	now := time.Now()

	o := newOrder(StatusCooking, PaymentPaid)
	assert.ErrorIs(t, o.Apply(StatusChange{Status: StatusPickedUp}, now), ErrInvalidTransition)

	o = newOrder(StatusReady, PaymentUnpaid)
	assert.ErrorIs(t, o.Apply(StatusChange{Status: StatusPickedUp}, now), ErrInvalidTransition)

	o = newOrder(StatusReady, PaymentPaid)
	assert.NoError(t, o.Apply(StatusChange{Status: StatusPickedUp}, now))
}

func TestApplyCancelNeedsReason(t *testing.T) {
	o := newOrder(StatusQueued, PaymentUnpaid)
	err := o.Apply(StatusChange{Status: StatusCancelled, CancelReason: "  "}, time.Now())
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, o.Apply(StatusChange{Status: StatusCancelled, CancelReason: "customer left"}, time.Now()))
	assert.Equal(t, "customer left", o.CancelReason)
	assert.NotNil(t, o.CancelledAt)
}

func TestApplyPaymentIsOneWay(t *testing.T) {
	o := newOrder(StatusReceived, PaymentUnpaid)
	require.NoError(t, o.Apply(StatusChange{PaymentStatus: PaymentPaid}, time.Now()))
	assert.Equal(t, StatusReceived, o.Status)

	assert.ErrorIs(t, o.Apply(StatusChange{PaymentStatus: PaymentUnpaid}, time.Now()), ErrInvalidTransition)
	assert.ErrorIs(t, o.Apply(StatusChange{PaymentStatus: PaymentPaid}, time.Now()), ErrInvalidTransition)
}

func TestApplyUnknownValues(t *testing.T) {
	o := newOrder(StatusReceived, PaymentUnpaid)
	assert.ErrorIs(t, o.Apply(StatusChange{Status: "baking"}, time.Now()), ErrValidation)
	assert.ErrorIs(t, o.Apply(StatusChange{PaymentStatus: "refunded"}, time.Now()), ErrValidation)
}
