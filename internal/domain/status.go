package domain

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	StatusReceived  OrderStatus = "received"
	StatusQueued    OrderStatus = "queued"
	StatusCooking   OrderStatus = "cooking"
	StatusReady     OrderStatus = "ready"
	StatusPickedUp  OrderStatus = "picked_up"
	StatusCancelled OrderStatus = "cancelled"
)

// forward chain position; cancelled sits outside the chain
var statusRank = map[OrderStatus]int{
	StatusReceived: 0,
	StatusQueued:   1,
	StatusCooking:  2,
	StatusReady:    3,
	StatusPickedUp: 4,
}

func (s OrderStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok || s == StatusCancelled
}

func (s OrderStatus) Terminal() bool {
	return s == StatusPickedUp || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentUnpaid || p == PaymentPaid
}

// StatusChange is a requested move on either axis. Empty fields keep the current value.
type StatusChange struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	CancelReason  string
}

// Apply validates the change against the order lifecycle and mutates o in place.
// Timestamps are stamped once, on first entry into their state.
func (o *Order) Apply(c StatusChange, now time.Time) error {
	if c.Status != "" && !c.Status.Valid() {
		return Invalid("status", "unknown status %q", c.Status)
	}
	if c.PaymentStatus != "" && !c.PaymentStatus.Valid() {
		return Invalid("payment_status", "unknown payment status %q", c.PaymentStatus)
	}
	if o.Status.Terminal() {
		return InvalidTransition("order %s is %s", o.OrderNumber, o.Status)
	}

	target := c.Status
	if target == "" {
		target = o.Status
	}
	pay := c.PaymentStatus
	if pay == "" {
		pay = o.PaymentStatus
	}

	if o.PaymentStatus == PaymentPaid && pay == PaymentUnpaid {
		return InvalidTransition("order %s is already paid", o.OrderNumber)
	}
	if target == o.Status && pay == o.PaymentStatus {
		return InvalidTransition("order %s is already %s", o.OrderNumber, o.Status)
	}

	reason := strings.TrimSpace(c.CancelReason)
	switch {
	case target == StatusCancelled:
		if reason == "" {
			return Invalid("cancel_reason", "a reason is required to cancel an order")
		}
	case statusRank[target] < statusRank[o.Status]:
		return InvalidTransition("order %s cannot move back from %s to %s", o.OrderNumber, o.Status, target)
	}
	if target == StatusPickedUp {
		if o.Status != StatusReady {
			return InvalidTransition("order %s must be ready before pickup, is %s", o.OrderNumber, o.Status)
		}
		if pay != PaymentPaid {
			return InvalidTransition("order %s must be paid before pickup", o.OrderNumber)
		}
	}

	o.PaymentStatus = pay
	if target != o.Status {
		o.Status = target
		at := now
		switch target {
		case StatusQueued:
			stamp(&o.QueuedAt, at)
		case StatusCooking:
			stamp(&o.CookingStartedAt, at)
		case StatusReady:
			stamp(&o.CookingCompletedAt, at)
		case StatusPickedUp:
			stamp(&o.PickedUpAt, at)
		case StatusCancelled:
			stamp(&o.CancelledAt, at)
			o.CancelReason = reason
		}
	}
	o.UpdatedAt = now
	return nil
}

func stamp(field **time.Time, at time.Time) {
	if *field == nil {
		*field = &at
	}
}
