package repository

import (
	"context"

	"festival-stall/internal/domain"
)

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// LockProduct reads the product and holds its row until the surrounding transaction ends.
	LockProduct(ctx context.Context, id int64) (*domain.Product, error)
	SaveStock(ctx context.Context, id int64, quantity int, status domain.ProductStatus) error
}

type ToppingRepository interface {
	// ActiveToppings returns the active toppings among ids that are valid for the product.
	ActiveToppings(ctx context.Context, productID int64, ids []int64) ([]domain.Topping, error)
}

type OrderFilter struct {
	Statuses []domain.OrderStatus
	Limit    int
}

type OrderRepository interface {
	// InsertOrder stores the order with its items. A taken order number yields domain.ErrConflict.
	InsertOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	LockOrder(ctx context.Context, id int64) (*domain.Order, error)
	SaveStatus(ctx context.Context, o *domain.Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	AppendStatusLog(ctx context.Context, e *domain.StatusLogEntry) error
	Timeline(ctx context.Context, orderID int64, limit, offset int) ([]domain.StatusLogEntry, error)
}

type StockLogRepository interface {
	AppendStockLog(ctx context.Context, e *domain.StockLogEntry) error
	StockLogs(ctx context.Context, productID int64, limit int) ([]domain.StockLogEntry, error)
}

// TxManager runs fn in one transaction. Nested calls join the outer transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store is everything the services need from storage.
type Store interface {
	ProductRepository
	ToppingRepository
	OrderRepository
	StockLogRepository
	TxManager
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
