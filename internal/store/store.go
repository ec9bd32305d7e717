package store

import (
	"context"
	"errors"
	"time"

	"shopledger/internal/models"
)

var (
	// ErrNotFound is returned when a referenced product or sale does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a sale would overdraw stock.
	// The product is left unmodified.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidInput is returned for malformed or out-of-range input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInconsistentState is returned when cached product counters
	// disagree with the sale log and cannot be trusted.
	ErrInconsistentState = errors.New("inconsistent ledger state")
)

// Store is the persistence boundary for the ledger and recorder. The
// postgres implementation backs the service; the memory implementation
// backs unit tests.
type Store interface {
	// Products
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	CountActiveProducts(ctx context.Context) (int, error)
	SearchProductsByName(ctx context.Context, query string, limit int) ([]models.Product, error)
	SetProductPrice(ctx context.Context, id int64, unitPrice int64) error
	RestockProduct(ctx context.Context, id int64, delta int) (int, error)
	MarkProductFinished(ctx context.Context, id int64) error
	UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error
	DeleteProduct(ctx context.Context, id int64) error
	UpdateProductTotals(ctx context.Context, id int64, quantity int, amount int64) error

	// Sales. RecordSaleTx and ReverseSaleTx are the transactional core:
	// the stock/totals mutation and the sale row commit together or not
	// at all. RecordSaleTx resolves the effective price against the
	// locked product row (sale.UnitPrice zero means "current price") and
	// computes the amount; on any error the product is untouched.
	RecordSaleTx(ctx context.Context, sale *models.Sale) (stockAfter int, err error)
	ReverseSaleTx(ctx context.Context, saleID int64) (*models.Sale, int, error)
	GetSaleByID(ctx context.Context, id int64) (*models.Sale, error)
	GetSaleByIdempotencyKey(ctx context.Context, key string) (*models.Sale, error)
	RecentSales(ctx context.Context, limit int) ([]models.Sale, error)
	RecentSalesByActor(ctx context.Context, actorID string, limit int) ([]models.Sale, error)
	SaleTotalsForProduct(ctx context.Context, productID int64) (quantity int, amount int64, err error)
	SaleTotalsByProduct(ctx context.Context) ([]models.SaleTotals, error)
	SalesByDay(ctx context.Context, since time.Time) ([]models.DaySales, error)
	ActorSalesBetween(ctx context.Context, actorID string, from, to time.Time) (quantity int, amount int64, err error)
	CountSalesForProduct(ctx context.Context, productID int64) (int, error)

	// Event idempotency
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
