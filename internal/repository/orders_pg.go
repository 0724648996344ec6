package repository

import (
	"context"
	"encoding/json"

	"festival-stall/internal/domain"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, order_number, total_amount, status, payment_status, payment_method,
	special_instructions, estimated_pickup_at, queued_at, cooking_started_at, cooking_completed_at,
	picked_up_at, cancelled_at, cancel_reason, created_at, updated_at`

func (s *Postgres) InsertOrder(ctx context.Context, o *domain.Order) error {
	q := s.q(ctx)

	// DO NOTHING keeps the transaction usable when the number is taken.
	err := q.QueryRow(ctx, `
		INSERT INTO orders
		    (order_number, total_amount, status, payment_status, payment_method,
		     special_instructions, estimated_pickup_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id
	`, o.OrderNumber, o.TotalAmount, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod),
		o.SpecialInstructions, o.EstimatedPickupAt, o.CreatedAt,
	).Scan(&o.ID)
	if isNoRows(err) {
		return domain.ErrConflict
	}
	if err != nil {
		return domain.Infra("insert order", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		toppings, err := json.Marshal(it.Toppings)
		if err != nil {
			return domain.Infra("encode toppings", err)
		}
		err = q.QueryRow(ctx, `
			INSERT INTO order_items
			    (order_id, product_id, product_name, product_price, quantity, toppings,
			     unit_price, total_price, instructions)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, o.ID, it.ProductID, it.ProductName, it.ProductPrice, it.Quantity, toppings,
			it.UnitPrice, it.LineTotal, it.Instructions,
		).Scan(&it.ID)
		if err != nil {
			return domain.Infra("insert order item", err)
		}
	}
	return nil
}

func (s *Postgres) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (s *Postgres) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	return s.loadOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (s *Postgres) loadOrder(ctx context.Context, sql string, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.q(ctx).QueryRow(ctx, sql, id))
	if isNoRows(err) {
		return nil, domain.NotFound("order", id)
	}
	if err != nil {
		return nil, domain.Infra("load order", err)
	}
	items, err := s.itemsFor(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (s *Postgres) SaveStatus(ctx context.Context, o *domain.Order) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE orders SET
		    status=$2, payment_status=$3, queued_at=$4, cooking_started_at=$5,
		    cooking_completed_at=$6, picked_up_at=$7, cancelled_at=$8, cancel_reason=$9, updated_at=$10
		WHERE id=$1
	`, o.ID, string(o.Status), string(o.PaymentStatus), o.QueuedAt, o.CookingStartedAt,
		o.CookingCompletedAt, o.PickedUpAt, o.CancelledAt, o.CancelReason, o.UpdatedAt)
	if err != nil {
		return domain.Infra("save order status", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("order", o.ID)
	}
	return nil
}

func (s *Postgres) ListOrders(ctx context.Context, f OrderFilter) ([]domain.Order, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}

	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, statuses, clampLimit(f.Limit))
	if err != nil {
		return nil, domain.Infra("list orders", err)
	}
	defer rows.Close()

	var out []domain.Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, domain.Infra("scan order", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Infra("list orders", err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := s.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (s *Postgres) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, order_id, product_id, product_name, product_price, quantity, toppings,
		       unit_price, total_price, instructions
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY id
	`, orderIDs)
	if err != nil {
		return nil, domain.Infra("load order items", err)
	}
	defer rows.Close()

	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var it domain.OrderItem
		var toppings []byte
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.ProductPrice,
			&it.Quantity, &toppings, &it.UnitPrice, &it.LineTotal, &it.Instructions); err != nil {
			return nil, domain.Infra("scan order item", err)
		}
		if err := json.Unmarshal(toppings, &it.Toppings); err != nil {
			return nil, domain.Infra("decode toppings", err)
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Infra("load order items", err)
	}
	return out, nil
}

func (s *Postgres) AppendStatusLog(ctx context.Context, e *domain.StatusLogEntry) error {
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO order_status_log (order_id, status, payment_status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.OrderID, string(e.Status), string(e.PaymentStatus), e.ChangedBy, e.Note, e.ChangedAt).Scan(&e.ID)
	if err != nil {
		return domain.Infra("insert order status log", err)
	}
	return nil
}

func (s *Postgres) Timeline(ctx context.Context, orderID int64, limit, offset int) ([]domain.StatusLogEntry, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, order_id, status, payment_status, changed_by, notes, changed_at
		FROM order_status_log WHERE order_id=$1
		ORDER BY changed_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, orderID, clampLimit(limit), offset)
	if err != nil {
		return nil, domain.Infra("load timeline", err)
	}
	defer rows.Close()

	var out []domain.StatusLogEntry
	for rows.Next() {
		var e domain.StatusLogEntry
		var st, pay string
		if err := rows.Scan(&e.ID, &e.OrderID, &st, &pay, &e.ChangedBy, &e.Note, &e.ChangedAt); err != nil {
			return nil, domain.Infra("scan timeline", err)
		}
		e.Status, e.PaymentStatus = domain.OrderStatus(st), domain.PaymentStatus(pay)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Infra("load timeline", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var st, pay, method string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.TotalAmount, &st, &pay, &method,
		&o.SpecialInstructions, &o.EstimatedPickupAt, &o.QueuedAt, &o.CookingStartedAt,
		&o.CookingCompletedAt, &o.PickedUpAt, &o.CancelledAt, &o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	o.Status, o.PaymentStatus, o.PaymentMethod = domain.OrderStatus(st), domain.PaymentStatus(pay), domain.PaymentMethod(method)
	return o, err
}
