package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"
	stock "festival-stall/internal/microservices/stock/service"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// maxNumberAttempts bounds order number regeneration on collisions.
const maxNumberAttempts = 5

// CreateOrder validates, prices, reserves stock and persists a new order in one transaction.
// Events go out only after commit.
func (s *OrderService) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	ctx, span := tracing.Tracer().Start(ctx, "order.create")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "cashier"
	}

	var (
		order   *domain.Order
		changes []stock.Change
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		now := s.now().UTC()
		o := &domain.Order{
			Status:              domain.StatusReceived,
			PaymentStatus:       domain.PaymentUnpaid,
			PaymentMethod:       req.PaymentMethod,
			SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
			TotalAmount:         decimal.Zero,
			CreatedAt:           now,
			UpdatedAt:           now,
			Items:               make([]domain.OrderItem, 0, len(req.Items)),
		}
		changes = changes[:0]

		maxCook := 0
		for _, line := range req.Items {
			ch, err := s.stock.Reserve(ctx, line.ProductID, line.Quantity, "order placement", actor)
			if err != nil {
				return err
			}
			changes = append(changes, ch)

			item, err := s.priceLine(ctx, ch.Product, line)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, item)
			o.TotalAmount = o.TotalAmount.Add(item.LineTotal)
			if ch.Product.CookingTime > maxCook {
				maxCook = ch.Product.CookingTime
			}
		}
		o.EstimatedPickupAt = now.Add(time.Duration(maxCook) * time.Minute)

		if err := s.insertWithFreshNumber(ctx, o); err != nil {
			return err
		}
		if err := s.store.AppendStatusLog(ctx, &domain.StatusLogEntry{
			OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus,
			ChangedBy: actor, Note: "order placed", ChangedAt: now,
		}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.logFailure("order_rejected", err, map[string]any{"lines": len(req.Items)})
		return nil, err
	}

	span.SetAttributes(attribute.String("order.number", order.OrderNumber), attribute.Int64("order.id", order.ID))
	s.lg.Info("order_created", map[string]any{
		"order_id": order.ID, "order_number": order.OrderNumber,
		"total_amount": order.TotalAmount.StringFixed(2), "items": len(order.Items),
	})

	s.pub.Publish(ctx, domain.OrderPlaced{Order: *order})
	s.stock.Announce(ctx, changes...)
	s.renderQR(ctx, order)
	return order, nil
}

func (s *OrderService) priceLine(ctx context.Context, p domain.Product, line domain.CreateOrderItem) (domain.OrderItem, error) {
	toppings, err := s.store.ActiveToppings(ctx, p.ID, dedupe(line.Toppings))
	if err != nil {
		return domain.OrderItem{}, err
	}
	byID := make(map[int64]domain.Topping, len(toppings))
	for _, t := range toppings {
		byID[t.ID] = t
	}

	// a topping requested twice is charged twice
	unit := p.Price
	snaps := make([]domain.ToppingSnapshot, 0, len(line.Toppings))
	for _, id := range line.Toppings {
		t, ok := byID[id]
		if !ok {
			continue
		}
		unit = unit.Add(t.Price)
		snaps = append(snaps, domain.ToppingSnapshot{ToppingID: t.ID, Name: t.Name, Price: t.Price})
	}

	return domain.OrderItem{
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductPrice: p.Price,
		Quantity:     line.Quantity,
		Toppings:     snaps,
		UnitPrice:    unit,
		LineTotal:    unit.Mul(decimal.NewFromInt(int64(line.Quantity))),
		Instructions: strings.TrimSpace(line.Instructions),
	}, nil
}

func (s *OrderService) insertWithFreshNumber(ctx context.Context, o *domain.Order) error {
	for attempt := 1; ; attempt++ {
		o.OrderNumber = s.numbers(o.CreatedAt)
		err := s.store.InsertOrder(ctx, o)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		s.lg.Warn("order_number_collision", map[string]any{"order_number": o.OrderNumber, "attempt": attempt})
		if attempt == maxNumberAttempts {
			return &domain.InfraError{
				Op:  "allocate order number",
				Err: fmt.Errorf("%d collisions: %w", attempt, err),
			}
		}
	}
}

func (s *OrderService) renderQR(ctx context.Context, o *domain.Order) {
	if s.qr == nil {
		return
	}
	img, err := s.qr.Generate(ctx, o.OrderNumber)
	if err != nil {
		s.lg.Error("qr_generation_failed", err, map[string]any{"order_number": o.OrderNumber})
		return
	}
	s.lg.Debug("qr_generated", map[string]any{"order_number": o.OrderNumber, "bytes": len(img)})
}

// logFailure keeps business rejections at info level; everything else is an error.
func (s *OrderService) logFailure(action string, err error, fields map[string]any) {
	switch domain.Kind(err) {
	case "infrastructure", "internal", "conflict":
		s.lg.Error(action, err, fields)
	default:
		if fields == nil {
			fields = map[string]any{}
		}
		fields["reason"] = err.Error()
		fields["kind"] = domain.Kind(err)
		s.lg.Info(action, fields)
	}
}

func dedupe(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
