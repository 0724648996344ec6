package domain

import (
	"fmt"
	"strings"
)

type CreateOrderItem struct {
	ProductID    int64   `json:"product_id"`
	Quantity     int     `json:"quantity"`
	Toppings     []int64 `json:"toppings,omitempty"`
	Instructions string  `json:"instructions,omitempty"`
}

type CreateOrderRequest struct {
	Items               []CreateOrderItem `json:"items"`
	PaymentMethod       PaymentMethod     `json:"payment_method"`
	SpecialInstructions string            `json:"special_instructions,omitempty"`
	Actor               string            `json:"actor,omitempty"`
}

// Validate rejects malformed requests before anything is touched.
func (r CreateOrderRequest) Validate() error {
	if len(r.Items) == 0 {
		return Invalid("items", "at least one item is required")
	}
	for i, it := range r.Items {
		if it.ProductID <= 0 {
			return Invalid(fmt.Sprintf("items[%d].product_id", i), "must be positive")
		}
		if it.Quantity <= 0 {
			return Invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
	}
	if !r.PaymentMethod.Valid() {
		return Invalid("payment_method", "must be one of cash, card, mobile")
	}
	return nil
}

type UpdateStatusRequest struct {
	Status        OrderStatus   `json:"status,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	CancelReason  string        `json:"cancel_reason,omitempty"`
	Actor         string        `json:"actor,omitempty"`
}

func (r UpdateStatusRequest) Change() StatusChange {
	return StatusChange{Status: r.Status, PaymentStatus: r.PaymentStatus, CancelReason: r.CancelReason}
}

func (r UpdateStatusRequest) Validate() error {
	if r.Status == "" && r.PaymentStatus == "" {
		return Invalid("status", "status or payment_status is required")
	}
	return nil
}

type StockUpdateRequest struct {
	ChangeType StockChangeType `json:"change_type"`
	Quantity   int             `json:"quantity"`
	Reason     string          `json:"reason"`
	Actor      string          `json:"actor"`
}

func (r StockUpdateRequest) Validate() error {
	if !r.ChangeType.Valid() {
		return Invalid("change_type", "must be one of increase, decrease, set, adjust")
	}
	if (r.ChangeType == StockIncrease || r.ChangeType == StockDecrease) && r.Quantity < 0 {
		return Invalid("quantity", "must not be negative for %s", r.ChangeType)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return Invalid("reason", "is required")
	}
	return nil
}
