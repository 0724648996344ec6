package service

import (
	"context"
	"strings"

	"festival-stall/internal/common/tracing"
	"festival-stall/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// UpdateStatus moves an order along its lifecycle under a row lock and logs the transition.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, req domain.UpdateStatusRequest) (*domain.Order, error) {
	ctx, span := tracing.Tracer().Start(ctx, "order.update_status")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id), attribute.String("order.target", string(req.Status)))

	if err := req.Validate(); err != nil {
		return nil, err
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "staff"
	}

	var (
		updated *domain.Order
		from    domain.OrderStatus
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.store.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		now := s.now().UTC()
		if err := o.Apply(req.Change(), now); err != nil {
			return err
		}
		if err := s.store.SaveStatus(ctx, o); err != nil {
			return err
		}
		if err := s.store.AppendStatusLog(ctx, &domain.StatusLogEntry{
			OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus,
			ChangedBy: actor, Note: o.CancelReason, ChangedAt: now,
		}); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		span.RecordError(err)
		s.logFailure("order_transition_rejected", err, map[string]any{"order_id": id, "target": req.Status})
		return nil, err
	}

	s.lg.Info("order_status_changed", map[string]any{
		"order_id": updated.ID, "order_number": updated.OrderNumber,
		"from": from, "to": updated.Status, "payment_status": updated.PaymentStatus, "actor": actor,
	})
	s.pub.Publish(ctx, domain.OrderStatusChanged{Order: *updated, From: from, To: updated.Status})
	return updated, nil
}

// StartCooking is the kitchen's shortcut into cooking.
func (s *OrderService) StartCooking(ctx context.Context, id int64, actor string) (*domain.Order, error) {
	return s.UpdateStatus(ctx, id, domain.UpdateStatusRequest{Status: domain.StatusCooking, Actor: actor})
}

// CompleteCooking marks the order ready for pickup.
func (s *OrderService) CompleteCooking(ctx context.Context, id int64, actor string) (*domain.Order, error) {
	return s.UpdateStatus(ctx, id, domain.UpdateStatusRequest{Status: domain.StatusReady, Actor: actor})
}
