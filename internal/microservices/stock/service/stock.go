package service

import (
	"context"
	"strings"
	"time"

	"festival-stall/internal/common/logger"
	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"
	"festival-stall/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

type StockServiceInterface interface {
	Apply(ctx context.Context, productID int64, req domain.StockUpdateRequest) (*Change, error)
	Logs(ctx context.Context, productID int64, limit int) ([]domain.StockLogEntry, error)
}

// Change is the product after a mutation together with its log entry.
type Change struct {
	Product domain.Product       `json:"product"`
	Log     domain.StockLogEntry `json:"log"`
}

type Store interface {
	repository.ProductRepository
	repository.StockLogRepository
}

// StockService is the stock ledger: every quantity change goes through here.
type StockService struct {
	store Store
	tx    repository.TxManager
	pub   domain.Publisher
	lg    *logger.Logger
	now   func() time.Time
}

func NewStockService(store Store, tx repository.TxManager, pub domain.Publisher, lg *logger.Logger) *StockService {
	if pub == nil {
		pub = domain.NopPublisher{}
	}
	return &StockService{store: store, tx: tx, pub: pub, lg: lg, now: time.Now}
}

func (s *StockService) Increase(ctx context.Context, productID int64, qty int, reason, actor string) (*Change, error) {
	return s.Apply(ctx, productID, domain.StockUpdateRequest{ChangeType: domain.StockIncrease, Quantity: qty, Reason: reason, Actor: actor})
}

func (s *StockService) Decrease(ctx context.Context, productID int64, qty int, reason, actor string) (*Change, error) {
	return s.Apply(ctx, productID, domain.StockUpdateRequest{ChangeType: domain.StockDecrease, Quantity: qty, Reason: reason, Actor: actor})
}

func (s *StockService) Set(ctx context.Context, productID int64, qty int, reason, actor string) (*Change, error) {
	return s.Apply(ctx, productID, domain.StockUpdateRequest{ChangeType: domain.StockSet, Quantity: qty, Reason: reason, Actor: actor})
}

func (s *StockService) Adjust(ctx context.Context, productID int64, delta int, reason, actor string) (*Change, error) {
	return s.Apply(ctx, productID, domain.StockUpdateRequest{ChangeType: domain.StockAdjust, Quantity: delta, Reason: reason, Actor: actor})
}

// Apply runs one ledger mutation in its own transaction and announces it after commit.
func (s *StockService) Apply(ctx context.Context, productID int64, req domain.StockUpdateRequest) (*Change, error) {
	ctx, span := tracing.Tracer().Start(ctx, "stock.apply")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID), attribute.String("stock.change_type", string(req.ChangeType)))

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var ch Change
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p, err := s.store.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		ch, err = s.mutate(ctx, p, req.ChangeType, req.Quantity, req.Reason, req.Actor)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.lg.Info("stock_changed", map[string]any{
		"product_id": productID, "change_type": req.ChangeType,
		"before": ch.Log.QuantityBefore, "after": ch.Log.QuantityAfter, "status": ch.Product.Status,
	})
	s.Announce(ctx, ch)
	return &ch, nil
}

// Reserve takes qty units of a sellable product for an order. It must run inside the
// caller's transaction; unlike Decrease it refuses rather than clamps.
func (s *StockService) Reserve(ctx context.Context, productID int64, qty int, reason, actor string) (Change, error) {
	p, err := s.store.LockProduct(ctx, productID)
	if err != nil {
		if domain.Kind(err) == "not_found" {
			return Change{}, &domain.ProductError{Err: domain.ErrProductUnavailable, ProductID: productID}
		}
		return Change{}, err
	}
	if p.IsDeleted || p.Status == domain.ProductDisabled {
		return Change{}, &domain.ProductError{Err: domain.ErrProductUnavailable, ProductID: p.ID, Name: p.Name}
	}
	// a sold-out product reports the shortage, not a generic unavailability
	if p.StockQuantity < qty {
		return Change{}, &domain.ProductError{
			Err: domain.ErrInsufficientStock, ProductID: p.ID, Name: p.Name,
			Requested: qty, Available: p.StockQuantity,
		}
	}
	if !p.Sellable() {
		return Change{}, &domain.ProductError{Err: domain.ErrProductUnavailable, ProductID: p.ID, Name: p.Name}
	}
	return s.mutate(ctx, p, domain.StockDecrease, qty, reason, actor)
}

// Announce publishes the committed changes and any low-stock alerts they cause.
func (s *StockService) Announce(ctx context.Context, changes ...Change) {
	for _, ch := range changes {
		s.pub.Publish(ctx, domain.StockUpdated{Product: ch.Product, Log: ch.Log})
		if alert, ok := domain.AlertFor(ch.Product); ok {
			s.lg.Warn("stock_low", map[string]any{
				"product_id": ch.Product.ID, "quantity": ch.Product.StockQuantity, "severity": alert.Severity,
			})
			s.pub.Publish(ctx, alert)
		}
	}
}

func (s *StockService) Logs(ctx context.Context, productID int64, limit int) ([]domain.StockLogEntry, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.StockLogs(ctx, productID, limit)
}

func (s *StockService) mutate(ctx context.Context, p *domain.Product, typ domain.StockChangeType, qty int, reason, actor string) (Change, error) {
	before := p.StockQuantity
	after := nextQuantity(typ, before, qty)

	p.StockQuantity = after
	p.Status = nextStatus(*p, before, after)
	p.UpdatedAt = s.now().UTC()

	if err := s.store.SaveStock(ctx, p.ID, after, p.Status); err != nil {
		return Change{}, err
	}
	entry := domain.StockLogEntry{
		ProductID:      p.ID,
		ChangeType:     typ,
		QuantityBefore: before,
		QuantityChange: after - before,
		QuantityAfter:  after,
		Reason:         strings.TrimSpace(reason),
		ChangedBy:      actorOrDefault(actor),
		CreatedAt:      p.UpdatedAt,
	}
	if err := s.store.AppendStockLog(ctx, &entry); err != nil {
		return Change{}, err
	}
	return Change{Product: *p, Log: entry}, nil
}

func nextQuantity(typ domain.StockChangeType, before, qty int) int {
	var after int
	switch typ {
	case domain.StockIncrease:
		after = before + qty
	case domain.StockDecrease:
		after = before - qty
	case domain.StockSet:
		after = qty
	case domain.StockAdjust:
		after = before + qty
	}
	if after < 0 {
		return 0
	}
	return after
}

// nextStatus disables at zero when configured and re-enables only on the 0 -> positive edge.
// Manually disabled and soft-deleted products are left alone.
func nextStatus(p domain.Product, before, after int) domain.ProductStatus {
	if p.IsDeleted {
		return p.Status
	}
	switch {
	case after <= 0 && p.AutoDisableOnZero:
		if p.Status == domain.ProductActive {
			return domain.ProductOutOfStock
		}
	case after > 0 && before == 0:
		if p.Status == domain.ProductOutOfStock {
			return domain.ProductActive
		}
	}
	return p.Status
}

func actorOrDefault(actor string) string {
	if a := strings.TrimSpace(actor); a != "" {
		return a
	}
	return "system"
}
