package service

import (
	"context"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/domain"
	stock "festival-stall/internal/microservices/stock/service"
	"festival-stall/internal/repository"
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, req domain.UpdateStatusRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error)
	Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusLogEntry, error)
}

type Store interface {
	repository.ToppingRepository
	repository.OrderRepository
}

// StockReserver is the part of the stock ledger order intake depends on.
type StockReserver interface {
	Reserve(ctx context.Context, productID int64, qty int, reason, actor string) (stock.Change, error)
	Announce(ctx context.Context, changes ...stock.Change)
}

// QRCodeGenerator renders the pickup code for a committed order.
type QRCodeGenerator interface {
	Generate(ctx context.Context, payload string) ([]byte, error)
}

type Deps struct {
	Store   Store
	Tx      repository.TxManager
	Stock   StockReserver
	Pub     domain.Publisher
	QR      QRCodeGenerator // optional
	Logger  *logger.Logger
	Now     func() time.Time
	Numbers func(time.Time) string
}

type OrderService struct {
	store   Store
	tx      repository.TxManager
	stock   StockReserver
	pub     domain.Publisher
	qr      QRCodeGenerator
	lg      *logger.Logger
	now     func() time.Time
	numbers func(time.Time) string
}

var _ OrderServiceInterface = (*OrderService)(nil)

func NewOrderService(d Deps) *OrderService {
	s := &OrderService{
		store: d.Store, tx: d.Tx, stock: d.Stock, pub: d.Pub, qr: d.QR,
		lg: d.Logger, now: d.Now, numbers: d.Numbers,
	}
	if s.pub == nil {
		s.pub = domain.NopPublisher{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.numbers == nil {
		s.numbers = NewOrderNumber
	}
	if s.lg == nil {
		s.lg = logger.NewNop()
	}
	return s
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.OrderFilter) ([]domain.Order, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, domain.Invalid("status", "unknown status %q", st)
		}
	}
	return s.store.ListOrders(ctx, f)
}

func (s *OrderService) Timeline(ctx context.Context, id int64, limit, offset int) ([]domain.StatusLogEntry, error) {
	if _, err := s.store.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Timeline(ctx, id, limit, offset)
}
