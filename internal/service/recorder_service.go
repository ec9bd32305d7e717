package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shopledger/internal/broker"
	"shopledger/internal/models"
	"shopledger/internal/redisclient"
	"shopledger/internal/store"
	"shopledger/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecorderService owns the immutable sale log. Recording and reversal
// run through single store transactions that also apply the inverse-
// exact ledger mutation, so the cached product counters and the sale
// log move together.
type RecorderService struct {
	store          store.Store
	redis          *redisclient.Client
	eventPublisher *broker.EventPublisher
	logger         *zap.Logger
}

// NewRecorderService creates a new recorder service. redis and
// eventPublisher may be nil.
func NewRecorderService(
	st store.Store,
	redis *redisclient.Client,
	eventPublisher *broker.EventPublisher,
) *RecorderService {
	return &RecorderService{
		store:          st,
		redis:          redis,
		eventPublisher: eventPublisher,
		logger:         util.NamedLogger("recorder"),
	}
}

// RecordSaleRequest represents a request to record a sale
type RecordSaleRequest struct {
	ProductID         int64  `json:"product_id" binding:"required"`
	Quantity          int    `json:"quantity" binding:"required,min=1"`
	UnitPriceOverride int64  `json:"unit_price_override,omitempty"`
	IdempotencyKey    string `json:"idempotency_key,omitempty"`
}

// Record applies a sale to the product and persists the sale record in
// one transaction. The actor arrives as an explicit parameter from the
// identity layer; nothing in here reads ambient session state.
func (s *RecorderService) Record(ctx context.Context, req *RecordSaleRequest, actor models.Actor) (*models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "RecorderService.Record")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SaleApplyLatency.Observe(time.Since(start).Seconds())
	}()

	if req.Quantity <= 0 {
		util.SalesFailedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, fmt.Errorf("quantity must be positive: %w", store.ErrInvalidInput)
	}
	if req.UnitPriceOverride < 0 {
		util.SalesFailedTotal.WithLabelValues("invalid_price").Inc()
		return nil, fmt.Errorf("unit price override must not be negative: %w", store.ErrInvalidInput)
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetSaleByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate sale request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("sale_id", existing.ID))
			return existing, nil
		}
	}

	sale := &models.Sale{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPriceOverride,
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
		IdempotencyKey: req.IdempotencyKey,
	}

	stockAfter, err := s.store.RecordSaleTx(ctx, sale)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			util.SalesFailedTotal.WithLabelValues("insufficient_stock").Inc()
		case errors.Is(err, store.ErrNotFound):
			util.SalesFailedTotal.WithLabelValues("product_not_found").Inc()
		case errors.Is(err, store.ErrInvalidInput):
			util.SalesFailedTotal.WithLabelValues("invalid_price").Inc()
		default:
			util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		}
		return nil, err
	}

	util.SalesRecordedTotal.Inc()
	util.StockLevel.WithLabelValues(strconv.FormatInt(sale.ProductID, 10)).Set(float64(stockAfter))
	s.logger.Info("Sale recorded",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("product_id", sale.ProductID),
		zap.Int("quantity", sale.Quantity),
		zap.Int64("amount", sale.Amount),
		zap.String("actor", actor.Username))

	if s.eventPublisher != nil {
		event := &models.SaleRecordedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSaleRecorded,
				Timestamp: time.Now(),
			},
			SaleID:        sale.ID,
			ProductID:     sale.ProductID,
			Quantity:      sale.Quantity,
			UnitPrice:     sale.UnitPrice,
			Amount:        sale.Amount,
			StockAfter:    stockAfter,
			ActorID:       actor.ID,
			ActorUsername: actor.Username,
		}
		if err := s.eventPublisher.PublishSaleRecorded(ctx, event); err != nil {
			s.logger.Error("Failed to publish SaleRecorded event", zap.Error(err))
		}
	}

	s.refreshCache(sale.ProductID, stockAfter)
	return sale, nil
}

// Reverse undoes a sale: the record is deleted and stock/totals are
// restored in one transaction. Returns false without error when the
// sale does not exist.
func (s *RecorderService) Reverse(ctx context.Context, saleID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "RecorderService.Reverse")
	defer span.End()

	sale, stockAfter, err := s.store.ReverseSaleTx(ctx, saleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	util.SalesReversedTotal.Inc()
	util.StockLevel.WithLabelValues(strconv.FormatInt(sale.ProductID, 10)).Set(float64(stockAfter))
	s.logger.Info("Sale reversed",
		zap.Int64("sale_id", sale.ID),
		zap.Int64("product_id", sale.ProductID),
		zap.Int("quantity", sale.Quantity),
		zap.Int64("amount", sale.Amount))

	if s.eventPublisher != nil {
		event := &models.SaleReversedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSaleReversed,
				Timestamp: time.Now(),
			},
			SaleID:     sale.ID,
			ProductID:  sale.ProductID,
			Quantity:   sale.Quantity,
			Amount:     sale.Amount,
			StockAfter: stockAfter,
		}
		if err := s.eventPublisher.PublishSaleReversed(ctx, event); err != nil {
			s.logger.Error("Failed to publish SaleReversed event", zap.Error(err))
		}
	}

	s.refreshCache(sale.ProductID, stockAfter)
	return true, nil
}

// TotalsForProduct recomputes quantity/amount from the sale log rather
// than reading the product's cached counters. This is the
// reconciliation source of truth.
func (s *RecorderService) TotalsForProduct(ctx context.Context, productID int64) (int, int64, error) {
	return s.store.SaleTotalsForProduct(ctx, productID)
}

// Recent returns the newest sales across all products
func (s *RecorderService) Recent(ctx context.Context, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.RecentSales(ctx, limit)
}

// RecentByActor returns one actor's newest sales
func (s *RecorderService) RecentByActor(ctx context.Context, actorID string, limit int) ([]models.Sale, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.store.RecentSalesByActor(ctx, actorID, limit)
}

// ActorTotalsToday sums one actor's sales since midnight UTC
func (s *RecorderService) ActorTotalsToday(ctx context.Context, actorID string) (int, int64, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.store.ActorSalesBetween(ctx, actorID, from, from.Add(24*time.Hour))
}

// SalesByDay groups totals by calendar day over the trailing window,
// ascending date order
func (s *RecorderService) SalesByDay(ctx context.Context, windowDays int) ([]models.DaySales, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	return s.store.SalesByDay(ctx, since)
}

// Reconcile compares every product's cached counters against the sums
// over its sale log and repairs any drift. Drift should never appear
// on the transactional path; when it does (manual DB edits, partial
// restores) this is the operator's repair tool and the worker's
// periodic safety net.
func (s *RecorderService) Reconcile(ctx context.Context) ([]models.TotalsDrift, error) {
	ctx, span := util.StartSpan(ctx, "RecorderService.Reconcile")
	defer span.End()

	util.ReconcileRunsTotal.Inc()

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	logTotals, err := s.store.SaleTotalsByProduct(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sale log: %w", err)
	}
	actual := make(map[int64]models.SaleTotals, len(logTotals))
	for _, t := range logTotals {
		actual[t.ProductID] = t
	}

	var drifts []models.TotalsDrift
	for _, product := range products {
		want := actual[product.ID] // zero value for products with no sales
		if product.TotalQuantitySold == want.TotalQuantity && product.TotalAmountSold == want.TotalAmount {
			continue
		}

		drift := models.TotalsDrift{
			ProductID:      product.ID,
			CachedQuantity: product.TotalQuantitySold,
			ActualQuantity: want.TotalQuantity,
			CachedAmount:   product.TotalAmountSold,
			ActualAmount:   want.TotalAmount,
		}
		drifts = append(drifts, drift)
		util.ReconcileDriftTotal.Inc()

		s.logger.Warn("Ledger counters drifted from sale log",
			zap.Int64("product_id", product.ID),
			zap.Int("cached_quantity", drift.CachedQuantity),
			zap.Int("actual_quantity", drift.ActualQuantity),
			zap.Int64("cached_amount", drift.CachedAmount),
			zap.Int64("actual_amount", drift.ActualAmount))

		if err := s.store.UpdateProductTotals(ctx, product.ID, want.TotalQuantity, want.TotalAmount); err != nil {
			return drifts, fmt.Errorf("failed to repair product %d: %v: %w",
				product.ID, err, store.ErrInconsistentState)
		}
	}

	if s.redis != nil && len(drifts) > 0 {
		if err := s.redis.InvalidateSummary(ctx); err != nil {
			s.logger.Warn("Failed to invalidate summary cache", zap.Error(err))
		}
	}
	return drifts, nil
}

func (s *RecorderService) refreshCache(productID int64, stockAfter int) {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.redis.SetStockLevel(ctx, productID, stockAfter); err != nil {
		s.logger.Warn("Failed to refresh stock cache", zap.Int64("product_id", productID), zap.Error(err))
	}
	if err := s.redis.InvalidateSummary(ctx); err != nil {
		s.logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}
}
