package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/store"
)

// RecordSaleTx applies a sale as one transaction: lock the product row,
// resolve the effective price, check the stock floor, decrement stock,
// increment the cached totals, and insert the immutable sale record.
// Either everything commits or nothing does, so the counters can never
// drift from the sale log on this path.
//
// The caller fills sale.ProductID, Quantity, actor fields and
// IdempotencyKey. sale.UnitPrice carries the price override, zero
// meaning "use the product's current price"; the resolved price and
// amount are written back along with ID, ProductName and RecordedAt.
func (s *Store) RecordSaleTx(ctx context.Context, sale *models.Sale) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var product models.Product
	err = tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 FOR UPDATE", sale.ProductID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product %d: %w", sale.ProductID, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock product: %w", err)
	}

	if sale.UnitPrice == 0 {
		sale.UnitPrice = product.UnitPrice
	}
	if sale.UnitPrice <= 0 {
		return 0, fmt.Errorf("effective unit price must be positive: %w", store.ErrInvalidInput)
	}
	sale.Amount = int64(sale.Quantity) * sale.UnitPrice

	if product.StockQuantity < sale.Quantity {
		return 0, fmt.Errorf("product %d: have %d, want %d: %w",
			sale.ProductID, product.StockQuantity, sale.Quantity, store.ErrInsufficientStock)
	}

	var stockAfter int
	err = tx.GetContext(ctx, &stockAfter, `
		UPDATE products
		SET stock_quantity = stock_quantity - $1,
		    total_quantity_sold = total_quantity_sold + $1,
		    total_amount_sold = total_amount_sold + $2
		WHERE id = $3
		RETURNING stock_quantity`,
		sale.Quantity, sale.Amount, sale.ProductID)
	if err != nil {
		return 0, fmt.Errorf("failed to apply sale to product: %w", err)
	}

	sale.ProductName = product.Name
	err = tx.GetContext(ctx, sale, `
		INSERT INTO sales (product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
		RETURNING id, recorded_at`,
		sale.ProductID, sale.ProductName, sale.Quantity, sale.UnitPrice, sale.Amount,
		sale.ActorID, sale.ActorUsername, sale.IdempotencyKey)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return stockAfter, nil
}

// ReverseSaleTx undoes a sale: delete the record and apply the exact
// inverse increments to the product, in one transaction. Returns the
// deleted sale and the stock level after restoration.
func (s *Store) ReverseSaleTx(ctx context.Context, saleID int64) (*models.Sale, int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var sale models.Sale
	err = tx.GetContext(ctx, &sale,
		"DELETE FROM sales WHERE id = $1 RETURNING id, product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at",
		saleID)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("sale %d: %w", saleID, store.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete sale: %w", err)
	}

	var stockAfter int
	err = tx.GetContext(ctx, &stockAfter, `
		UPDATE products
		SET stock_quantity = stock_quantity + $1,
		    total_quantity_sold = total_quantity_sold - $1,
		    total_amount_sold = total_amount_sold - $2
		WHERE id = $3
		RETURNING stock_quantity`,
		sale.Quantity, sale.Amount, sale.ProductID)
	if err == sql.ErrNoRows {
		return nil, 0, fmt.Errorf("product %d for sale %d: %w", sale.ProductID, saleID, store.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to reverse sale on product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return &sale, stockAfter, nil
}

// GetSaleByID retrieves a sale by ID
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale,
		"SELECT id, product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at FROM sales WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sale %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByIdempotencyKey retrieves a sale by idempotency key, nil if absent
func (s *Store) GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale,
		"SELECT id, product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at FROM sales WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// RecentSales retrieves the newest sales across all products
func (s *Store) RecentSales(ctx context.Context, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT id, product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at FROM sales ORDER BY recorded_at DESC, id DESC LIMIT $1",
		limit)
	return sales, err
}

// RecentSalesByActor retrieves the newest sales recorded by one actor
func (s *Store) RecentSalesByActor(ctx context.Context, actorID string, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := s.db.SelectContext(ctx, &sales,
		"SELECT id, product_id, product_name, quantity, unit_price, amount, actor_id, actor_username, COALESCE(idempotency_key, '') AS idempotency_key, recorded_at FROM sales WHERE actor_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT $2",
		actorID, limit)
	return sales, err
}

// SaleTotalsForProduct recomputes quantity/amount sums from the sale log
func (s *Store) SaleTotalsForProduct(ctx context.Context, productID int64) (int, int64, error) {
	var totals models.SaleTotals
	err := s.db.GetContext(ctx, &totals, `
		SELECT $1::bigint AS product_id,
		       COALESCE(SUM(quantity), 0) AS total_quantity,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM sales WHERE product_id = $1`, productID)
	if err != nil {
		return 0, 0, err
	}
	return totals.TotalQuantity, totals.TotalAmount, nil
}

// SaleTotalsByProduct recomputes sums for every product that has sales
func (s *Store) SaleTotalsByProduct(ctx context.Context) ([]models.SaleTotals, error) {
	var totals []models.SaleTotals
	err := s.db.SelectContext(ctx, &totals, `
		SELECT product_id,
		       COALESCE(SUM(quantity), 0) AS total_quantity,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM sales
		GROUP BY product_id
		ORDER BY product_id`)
	return totals, err
}

// SalesByDay groups sales by calendar day from `since` onward, ascending
func (s *Store) SalesByDay(ctx context.Context, since time.Time) ([]models.DaySales, error) {
	var days []models.DaySales
	err := s.db.SelectContext(ctx, &days, `
		SELECT date_trunc('day', recorded_at) AS day,
		       COALESCE(SUM(quantity), 0) AS total_quantity,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM sales
		WHERE recorded_at >= $1
		GROUP BY day
		ORDER BY day`, since)
	return days, err
}

// ActorSalesBetween sums one actor's sales inside a time window
func (s *Store) ActorSalesBetween(ctx context.Context, actorID string, from, to time.Time) (int, int64, error) {
	row := struct {
		Quantity int   `db:"total_quantity"`
		Amount   int64 `db:"total_amount"`
	}{}
	err := s.db.GetContext(ctx, &row, `
		SELECT COALESCE(SUM(quantity), 0) AS total_quantity,
		       COALESCE(SUM(amount), 0) AS total_amount
		FROM sales
		WHERE actor_id = $1 AND recorded_at >= $2 AND recorded_at < $3`,
		actorID, from, to)
	return row.Quantity, row.Amount, err
}

// CountSalesForProduct counts sale records referencing a product
func (s *Store) CountSalesForProduct(ctx context.Context, productID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sales WHERE product_id = $1", productID)
	return count, err
}
