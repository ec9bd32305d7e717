package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"shopledger/internal/broker"
	"shopledger/internal/models"
	"shopledger/internal/redisclient"
	"shopledger/internal/store"
	"shopledger/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerService owns authoritative product state: identity, price,
// stock and the cached sale totals. It is the only component that
// mutates stock outside the recorder's transactional sale path.
type LedgerService struct {
	store            store.Store
	redis            *redisclient.Client
	eventPublisher   *broker.EventPublisher
	logger           *zap.Logger
	activeBatchLimit int
}

// NewLedgerService creates a new ledger service. redis and
// eventPublisher may be nil (tests, degraded boot); both are
// best-effort side channels.
func NewLedgerService(
	st store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
	activeBatchLimit int,
) *LedgerService {
	return &LedgerService{
		store:            st,
		redis:            redis,
		eventPublisher:   eventPublisher,
		logger:           util.NamedLogger("ledger"),
		activeBatchLimit: activeBatchLimit,
	}
}

// CreateProductRequest represents a request to register a new batch
type CreateProductRequest struct {
	Name          string `json:"name" binding:"required"`
	BatchCost     int64  `json:"batch_cost"`
	StockQuantity int    `json:"stock_quantity"`
	UnitPrice     int64  `json:"unit_price"`
}

// CreateProduct registers a new batch with zeroed totals
func (s *LedgerService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.CreateProduct")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("product name must not be empty: %w", store.ErrInvalidInput)
	}
	if req.BatchCost < 0 {
		return nil, fmt.Errorf("batch cost must not be negative: %w", store.ErrInvalidInput)
	}
	if req.UnitPrice < 0 {
		return nil, fmt.Errorf("unit price must not be negative: %w", store.ErrInvalidInput)
	}
	if req.StockQuantity < 0 {
		return nil, fmt.Errorf("stock quantity must not be negative: %w", store.ErrInvalidInput)
	}

	if s.activeBatchLimit > 0 {
		active, err := s.store.CountActiveProducts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count active batches: %w", err)
		}
		if active >= s.activeBatchLimit {
			return nil, fmt.Errorf("active batch limit of %d reached: %w", s.activeBatchLimit, store.ErrInvalidInput)
		}
	}

	product := &models.Product{
		Name:          name,
		BatchCost:     req.BatchCost,
		UnitPrice:     req.UnitPrice,
		StockQuantity: req.StockQuantity,
		Status:        models.ProductStatusActive,
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product batch created",
		zap.Int64("product_id", product.ID),
		zap.String("name", product.Name),
		zap.Int("stock", product.StockQuantity))

	s.cacheStockLevel(product.ID, product.StockQuantity)
	return product, nil
}

// GetProduct retrieves a product by ID
func (s *LedgerService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

// ListProducts retrieves all products, newest batch first
func (s *LedgerService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

// ListActiveProducts retrieves active batches only. Finished batches
// stay queryable through ListProducts and reports.
func (s *LedgerService) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListActiveProducts(ctx)
}

// SearchByName does a case-insensitive substring search, newest first
func (s *LedgerService) SearchByName(ctx context.Context, query string, limit int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.SearchProductsByName(ctx, query, limit)
}

// SetPrice overwrites the current selling price only
func (s *LedgerService) SetPrice(ctx context.Context, id int64, unitPrice int64) error {
	if unitPrice < 0 {
		return fmt.Errorf("unit price must not be negative: %w", store.ErrInvalidInput)
	}
	return s.store.SetProductPrice(ctx, id, unitPrice)
}

// Restock adds delta to a product's stock. Delta may be negative for
// corrective adjustments and is deliberately not floored at zero; only
// the sale path enforces the strict floor.
func (s *LedgerService) Restock(ctx context.Context, id int64, delta int) (int, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Restock")
	defer span.End()

	stockAfter, err := s.store.RestockProduct(ctx, id, delta)
	if err != nil {
		return 0, err
	}

	util.RestocksTotal.Inc()
	util.StockLevel.WithLabelValues(strconv.FormatInt(id, 10)).Set(float64(stockAfter))
	s.logger.Info("Product restocked",
		zap.Int64("product_id", id),
		zap.Int("delta", delta),
		zap.Int("stock_after", stockAfter))

	s.publishRestocked(ctx, id, delta, stockAfter)
	s.cacheStockLevel(id, stockAfter)
	return stockAfter, nil
}

// MarkFinished transitions a batch to finished. Idempotent.
func (s *LedgerService) MarkFinished(ctx context.Context, id int64) error {
	if err := s.store.MarkProductFinished(ctx, id); err != nil {
		return err
	}

	util.ProductsFinishedTotal.Inc()
	s.logger.Info("Batch marked finished", zap.Int64("product_id", id))

	if s.eventPublisher != nil {
		event := &models.BatchFinishedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeBatchFinished,
				Timestamp: time.Now(),
			},
			ProductID: id,
		}
		if err := s.eventPublisher.PublishBatchFinished(ctx, event); err != nil {
			s.logger.Error("Failed to publish BatchFinished event", zap.Error(err))
		}
	}
	return nil
}

// UpdateProduct applies a guarded partial update of product fields
func (s *LedgerService) UpdateProduct(ctx context.Context, id int64, upd models.ProductUpdate) error {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return fmt.Errorf("product name must not be empty: %w", store.ErrInvalidInput)
	}
	if upd.BatchCost != nil && *upd.BatchCost < 0 {
		return fmt.Errorf("batch cost must not be negative: %w", store.ErrInvalidInput)
	}
	if upd.UnitPrice != nil && *upd.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative: %w", store.ErrInvalidInput)
	}
	if upd.Status != nil && *upd.Status != models.ProductStatusActive && *upd.Status != models.ProductStatusFinished {
		return fmt.Errorf("unknown status %q: %w", *upd.Status, store.ErrInvalidInput)
	}
	return s.store.UpdateProduct(ctx, id, upd)
}

// DeleteProduct deletes a batch. Deletion is refused while sale records
// still reference the product, so the sale log never holds orphaned
// references.
func (s *LedgerService) DeleteProduct(ctx context.Context, id int64) error {
	count, err := s.store.CountSalesForProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count sales: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("product %d still has %d sale records: %w", id, count, store.ErrInvalidInput)
	}

	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	if s.redis != nil {
		if err := s.redis.DeleteStockLevel(ctx, id); err != nil {
			s.logger.Warn("Failed to evict stock cache", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return nil
}

// StockLevel serves the current stock count, cache-aside: Redis first,
// falling back to the database and backfilling the cache on a miss.
func (s *LedgerService) StockLevel(ctx context.Context, id int64) (int, error) {
	if s.redis != nil {
		stock, found, err := s.redis.GetStockLevel(ctx, id)
		if err != nil {
			s.logger.Warn("Stock cache read failed", zap.Int64("product_id", id), zap.Error(err))
		} else if found {
			return stock, nil
		}
	}

	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return 0, err
	}
	s.cacheStockLevel(id, product.StockQuantity)
	return product.StockQuantity, nil
}

// ComputeProfit returns total_amount_sold minus batch_cost. BatchCost
// is the one-time cost of the whole batch, so this is batch margin to
// date and goes negative until the batch has earned its cost back.
func (s *LedgerService) ComputeProfit(ctx context.Context, id int64) (int64, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return product.Profit(), nil
}

// SyncStockToRedis warms the stock cache from the database at boot
func (s *LedgerService) SyncStockToRedis(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	for _, product := range products {
		if err := s.redis.SetStockLevel(ctx, product.ID, product.StockQuantity); err != nil {
			s.logger.Error("Failed to cache stock level",
				zap.Int64("product_id", product.ID),
				zap.Error(err))
		}
		util.StockLevel.WithLabelValues(strconv.FormatInt(product.ID, 10)).Set(float64(product.StockQuantity))
	}

	s.logger.Info("Stock cache synced", zap.Int("count", len(products)))
	return nil
}

func (s *LedgerService) publishRestocked(ctx context.Context, id int64, delta, stockAfter int) {
	if s.eventPublisher == nil {
		return
	}
	event := &models.ProductRestockedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProductRestocked,
			Timestamp: time.Now(),
		},
		ProductID:  id,
		Delta:      delta,
		StockAfter: stockAfter,
	}
	if err := s.eventPublisher.PublishProductRestocked(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductRestocked event", zap.Error(err))
	}
}

func (s *LedgerService) cacheStockLevel(id int64, stock int) {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.SetStockLevel(ctx, id, stock); err != nil {
		s.logger.Warn("Failed to cache stock level", zap.Int64("product_id", id), zap.Error(err))
	}
}
