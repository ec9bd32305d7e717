package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/store"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the PostgreSQL-backed implementation of store.Store.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// NewStore connects to the database and returns a new store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateProduct inserts a new product batch with zeroed totals
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, batch_cost, unit_price, stock_quantity, status, total_quantity_sold, total_amount_sold)
		VALUES ($1, $2, $3, $4, $5, 0, 0)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, p, query,
		p.Name, p.BatchCost, p.UnitPrice, p.StockQuantity, p.Status)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves all products, newest batch first
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products ORDER BY created_at DESC, id DESC")
	return products, err
}

// ListActiveProducts retrieves active products only, newest batch first
func (s *Store) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE status = $1 ORDER BY created_at DESC, id DESC",
		models.ProductStatusActive)
	return products, err
}

// CountActiveProducts counts active batches
func (s *Store) CountActiveProducts(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM products WHERE status = $1", models.ProductStatusActive)
	return count, err
}

// SearchProductsByName does a case-insensitive substring search
func (s *Store) SearchProductsByName(ctx context.Context, query string, limit int) ([]models.Product, error) {
	pattern := "%" + escapeLike(query) + "%"
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE name ILIKE $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		pattern, limit)
	return products, err
}

// SetProductPrice overwrites the current selling price only
func (s *Store) SetProductPrice(ctx context.Context, id int64, unitPrice int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET unit_price = $1 WHERE id = $2", unitPrice, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// RestockProduct adds delta to stock. Delta may be negative for
// corrections; restock deliberately has no floor, unlike sales.
func (s *Store) RestockProduct(ctx context.Context, id int64, delta int) (int, error) {
	var stockAfter int
	err := s.db.GetContext(ctx, &stockAfter,
		"UPDATE products SET stock_quantity = stock_quantity + $1 WHERE id = $2 RETURNING stock_quantity",
		delta, id)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return stockAfter, err
}

// MarkProductFinished sets status to finished. Idempotent.
func (s *Store) MarkProductFinished(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET status = $1 WHERE id = $2", models.ProductStatusFinished, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// UpdateProduct applies a guarded partial update
func (s *Store) UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Name != nil {
		add("name", strings.TrimSpace(*upd.Name))
	}
	if upd.BatchCost != nil {
		add("batch_cost", *upd.BatchCost)
	}
	if upd.UnitPrice != nil {
		add("unit_price", *upd.UnitPrice)
	}
	if upd.StockQuantity != nil {
		add("stock_quantity", *upd.StockQuantity)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d",
		strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// DeleteProduct deletes a product. Callers must ensure no sales still
// reference it; the foreign key is the last line of defense.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// UpdateProductTotals overwrites the cached counters (reconciliation repair)
func (s *Store) UpdateProductTotals(ctx context.Context, id int64, quantity int, amount int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET total_quantity_sold = $1, total_amount_sold = $2 WHERE id = $3",
		quantity, amount, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
