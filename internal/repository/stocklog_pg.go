package repository

import (
	"context"

	"festival-stall/internal/domain"
)

func (s *Postgres) AppendStockLog(ctx context.Context, e *domain.StockLogEntry) error {
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO stock_logs
		    (product_id, change_type, quantity_before, quantity_change, quantity_after, reason, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, e.ProductID, string(e.ChangeType), e.QuantityBefore, e.QuantityChange, e.QuantityAfter,
		e.Reason, e.ChangedBy, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return domain.Infra("append stock log", err)
	}
	return nil
}

func (s *Postgres) StockLogs(ctx context.Context, productID int64, limit int) ([]domain.StockLogEntry, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, product_id, change_type, quantity_before, quantity_change, quantity_after,
		       reason, changed_by, created_at
		FROM stock_logs WHERE product_id=$1
		ORDER BY id DESC
		LIMIT $2
	`, productID, clampLimit(limit))
	if err != nil {
		return nil, domain.Infra("load stock logs", err)
	}
	defer rows.Close()

	var out []domain.StockLogEntry
	for rows.Next() {
		var e domain.StockLogEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.ProductID, &typ, &e.QuantityBefore, &e.QuantityChange,
			&e.QuantityAfter, &e.Reason, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, domain.Infra("scan stock log", err)
		}
		e.ChangeType = domain.StockChangeType(typ)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Infra("load stock logs", err)
	}
	return out, nil
}
