package repository

import (
	"context"

	"festival-stall/internal/domain"
)

const productColumns = `id, name, price, cooking_time, stock_quantity, low_stock_threshold,
	auto_disable_on_zero, status, is_deleted, updated_at`

func (s *Postgres) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.scanProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
}

func (s *Postgres) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.scanProduct(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id)
}

func (s *Postgres) scanProduct(ctx context.Context, sql string, id int64) (*domain.Product, error) {
	var p domain.Product
	var status string
	err := s.q(ctx).QueryRow(ctx, sql, id).Scan(
		&p.ID, &p.Name, &p.Price, &p.CookingTime, &p.StockQuantity, &p.LowStockThreshold,
		&p.AutoDisableOnZero, &status, &p.IsDeleted, &p.UpdatedAt,
	)
	if isNoRows(err) {
		return nil, domain.NotFound("product", id)
	}
	if err != nil {
		return nil, domain.Infra("load product", err)
	}
	p.Status = domain.ProductStatus(status)
	return &p, nil
}

func (s *Postgres) SaveStock(ctx context.Context, id int64, quantity int, status domain.ProductStatus) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE products SET stock_quantity=$2, status=$3, updated_at=now()
		WHERE id=$1
	`, id, quantity, string(status))
	if err != nil {
		return domain.Infra("save stock", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("product", id)
	}
	return nil
}

func (s *Postgres) ActiveToppings(ctx context.Context, productID int64, ids []int64) ([]domain.Topping, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT t.id, t.name, t.price, t.is_active
		FROM toppings t
		JOIN product_toppings pt ON pt.topping_id = t.id
		WHERE pt.product_id = $1 AND t.is_active AND t.id = ANY($2)
		ORDER BY t.id
	`, productID, ids)
	if err != nil {
		return nil, domain.Infra("load toppings", err)
	}
	defer rows.Close()

	var out []domain.Topping
	for rows.Next() {
		var t domain.Topping
		if err := rows.Scan(&t.ID, &t.Name, &t.Price, &t.IsActive); err != nil {
			return nil, domain.Infra("scan topping", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Infra("load toppings", err)
	}
	return out, nil
}
