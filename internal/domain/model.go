package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive     ProductStatus = "active"
	ProductDisabled   ProductStatus = "disabled"
	ProductOutOfStock ProductStatus = "out_of_stock"
)

type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	CookingTime       int             `json:"cooking_time"` // minutes
	StockQuantity     int             `json:"stock_quantity"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	AutoDisableOnZero bool            `json:"auto_disable_on_zero"`
	Status            ProductStatus   `json:"status"`
	IsDeleted         bool            `json:"is_deleted"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Sellable reports whether the product may appear on a new order.
func (p Product) Sellable() bool {
	return !p.IsDeleted && p.Status == ProductActive
}

type Topping struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile:
		return true
	}
	return false
}

type Order struct {
	ID                  int64           `json:"id"`
	OrderNumber         string          `json:"order_number"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Status              OrderStatus     `json:"status"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	PaymentMethod       PaymentMethod   `json:"payment_method"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	EstimatedPickupAt   time.Time       `json:"estimated_pickup_at"`
	QueuedAt            *time.Time      `json:"queued_at,omitempty"`
	CookingStartedAt    *time.Time      `json:"cooking_started_at,omitempty"`
	CookingCompletedAt  *time.Time      `json:"cooking_completed_at,omitempty"`
	PickedUpAt          *time.Time      `json:"picked_up_at,omitempty"`
	CancelledAt         *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason        string          `json:"cancel_reason,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Items               []OrderItem     `json:"items"`
}

// ToppingSnapshot is the topping as priced when the order was placed.
type ToppingSnapshot struct {
	ToppingID int64           `json:"topping_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

type OrderItem struct {
	ID           int64             `json:"id"`
	OrderID      int64             `json:"order_id"`
	ProductID    int64             `json:"product_id"`
	ProductName  string            `json:"product_name"`
	ProductPrice decimal.Decimal   `json:"product_price"`
	Quantity     int               `json:"quantity"`
	Toppings     []ToppingSnapshot `json:"toppings"`
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	LineTotal    decimal.Decimal   `json:"total_price"`
	Instructions string            `json:"instructions,omitempty"`
}

type StockChangeType string

const (
	StockIncrease StockChangeType = "increase"
	StockDecrease StockChangeType = "decrease"
	StockSet      StockChangeType = "set"
	StockAdjust   StockChangeType = "adjust"
)

func (t StockChangeType) Valid() bool {
	switch t {
	case StockIncrease, StockDecrease, StockSet, StockAdjust:
		return true
	}
	return false
}

// StockLogEntry is append-only.
type StockLogEntry struct {
	ID             int64           `json:"id"`
	ProductID      int64           `json:"product_id"`
	ChangeType     StockChangeType `json:"change_type"`
	QuantityBefore int             `json:"quantity_before"`
	QuantityChange int             `json:"quantity_change"`
	QuantityAfter  int             `json:"quantity_after"`
	Reason         string          `json:"reason"`
	ChangedBy      string          `json:"changed_by"`
	CreatedAt      time.Time       `json:"created_at"`
}

type StatusLogEntry struct {
	ID            int64         `json:"id"`
	OrderID       int64         `json:"order_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	ChangedBy     string        `json:"changed_by"`
	Note          string        `json:"note,omitempty"`
	ChangedAt     time.Time     `json:"changed_at"`
}
