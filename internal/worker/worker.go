package worker

import (
	"context"
	"time"

	"shopledger/internal/broker"
	"shopledger/internal/models"
	"shopledger/internal/redisclient"
	"shopledger/internal/service"
	"shopledger/internal/store"
	"shopledger/internal/util"

	"go.uber.org/zap"
)

// ProjectionWorker consumes ledger events and keeps the Redis read
// projection (stock levels, dashboard summary) in step with postgres.
// Event handling is idempotent via the processed_events table, so
// redelivery after a crash is harmless.
type ProjectionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        store.Store
	redis        *redisclient.Client
	logger       *zap.Logger
}

// NewProjectionWorker creates a new projection worker
func NewProjectionWorker(consumer *broker.Consumer, st store.Store, redis *redisclient.Client) *ProjectionWorker {
	w := &ProjectionWorker{
		consumer: consumer,
		store:    st,
		redis:    redis,
		logger:   util.NamedLogger("projection-worker"),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleRecorded(w.handleSaleRecorded)
	eventHandler.OnSaleReversed(w.handleSaleReversed)
	eventHandler.OnProductRestocked(w.handleProductRestocked)
	eventHandler.OnBatchFinished(w.handleBatchFinished)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ProjectionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting projection worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ProjectionWorker) Stop() error {
	w.logger.Info("Stopping projection worker")
	return w.consumer.Close()
}

func (w *ProjectionWorker) handleSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	return w.applyStockEvent(ctx, event.EventID, event.EventType, event.ProductID, event.StockAfter)
}

func (w *ProjectionWorker) handleSaleReversed(ctx context.Context, event *models.SaleReversedEvent) error {
	return w.applyStockEvent(ctx, event.EventID, event.EventType, event.ProductID, event.StockAfter)
}

func (w *ProjectionWorker) handleProductRestocked(ctx context.Context, event *models.ProductRestockedEvent) error {
	return w.applyStockEvent(ctx, event.EventID, event.EventType, event.ProductID, event.StockAfter)
}

func (w *ProjectionWorker) handleBatchFinished(ctx context.Context, event *models.BatchFinishedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil || processed {
		return err
	}
	if err := w.redis.InvalidateSummary(ctx); err != nil {
		util.CacheRefreshFailedTotal.Inc()
		w.logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}
	return w.store.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

func (w *ProjectionWorker) applyStockEvent(ctx context.Context, eventID, eventType string, productID int64, stockAfter int) error {
	processed, err := w.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if processed {
		w.logger.Debug("Event already processed", zap.String("event_id", eventID))
		return nil
	}

	if err := w.redis.SetStockLevel(ctx, productID, stockAfter); err != nil {
		util.CacheRefreshFailedTotal.Inc()
		w.logger.Warn("Failed to refresh stock cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	if err := w.redis.InvalidateSummary(ctx); err != nil {
		util.CacheRefreshFailedTotal.Inc()
		w.logger.Warn("Failed to invalidate summary cache", zap.Error(err))
	}

	return w.store.MarkEventProcessed(ctx, eventID, eventType)
}

// ReconcileWorker periodically verifies the cached product counters
// against the sale log and repairs drift. A Redis lock keeps multiple
// instances from reconciling at once.
type ReconcileWorker struct {
	recorder *service.RecorderService
	redis    *redisclient.Client
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(recorder *service.RecorderService, redis *redisclient.Client, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		recorder: recorder,
		redis:    redis,
		interval: interval,
		logger:   util.NamedLogger("reconcile-worker"),
		done:     make(chan struct{}),
	}
}

// Start runs the reconciliation loop until the context is cancelled
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconcile worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Reconcile worker stopped")
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the worker
func (w *ReconcileWorker) Stop() {
	close(w.done)
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	if w.redis != nil {
		acquired, err := w.redis.AcquireLock(ctx, "reconcile", w.interval)
		if err != nil {
			w.logger.Warn("Failed to acquire reconcile lock", zap.Error(err))
			return
		}
		if !acquired {
			return
		}
		defer func() {
			if err := w.redis.ReleaseLock(ctx, "reconcile"); err != nil {
				w.logger.Warn("Failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	drifts, err := w.recorder.Reconcile(ctx)
	if err != nil {
		w.logger.Error("Reconciliation failed", zap.Error(err))
		return
	}
	if len(drifts) > 0 {
		w.logger.Warn("Reconciliation repaired drifted counters", zap.Int("products", len(drifts)))
	}
}
