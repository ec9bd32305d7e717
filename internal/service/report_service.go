package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/redisclient"
	"shopledger/internal/store"
	"shopledger/internal/util"

	"go.uber.org/zap"
)

// ReportService is a read-only consumer of the ledger's stored data:
// dashboard summary, per-batch reports, daily trend and CSV export.
type ReportService struct {
	store      store.Store
	redis      *redisclient.Client
	logger     *zap.Logger
	summaryTTL time.Duration
}

// NewReportService creates a new report service. redis may be nil; the
// summary is then recomputed on every call.
func NewReportService(st store.Store, redis *redisclient.Client, summaryTTL time.Duration) *ReportService {
	return &ReportService{
		store:      st,
		redis:      redis,
		logger:     util.NamedLogger("report"),
		summaryTTL: summaryTTL,
	}
}

// Summary aggregates revenue, cost, profit and quantity across all
// batches. Served from the Redis cache when warm; the recorder
// invalidates it on every sale and reversal.
func (s *ReportService) Summary(ctx context.Context) (*models.Summary, error) {
	ctx, span := util.StartSpan(ctx, "ReportService.Summary")
	defer span.End()

	if s.redis != nil {
		var cached models.Summary
		hit, err := s.redis.GetSummary(ctx, &cached)
		if err != nil {
			s.logger.Warn("Summary cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	summary := &models.Summary{}
	for _, p := range products {
		summary.TotalRevenue += p.TotalAmountSold
		summary.TotalCost += p.BatchCost
		summary.TotalQuantity += p.TotalQuantitySold
		if p.Status == models.ProductStatusActive {
			summary.ActiveBatches++
		}
	}
	summary.TotalProfit = summary.TotalRevenue - summary.TotalCost

	if s.redis != nil {
		if err := s.redis.SetSummary(ctx, summary, s.summaryTTL); err != nil {
			s.logger.Warn("Summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// ProductReports returns one row per batch with its profit figures
func (s *ReportService) ProductReports(ctx context.Context) ([]models.ProductReport, error) {
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	reports := make([]models.ProductReport, 0, len(products))
	for _, p := range products {
		reports = append(reports, models.ProductReport{
			ProductID:    p.ID,
			Name:         p.Name,
			QuantitySold: p.TotalQuantitySold,
			Revenue:      p.TotalAmountSold,
			BatchCost:    p.BatchCost,
			Profit:       p.Profit(),
		})
	}
	return reports, nil
}

// Trend returns daily revenue/quantity over the trailing window
func (s *ReportService) Trend(ctx context.Context, days int) ([]models.DaySales, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.store.SalesByDay(ctx, since)
}

// ExportCSV writes the per-batch business report as CSV. Monetary
// columns are minor units.
func (s *ReportService) ExportCSV(ctx context.Context, w io.Writer) error {
	reports, err := s.ProductReports(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Batch", "Qty Sold", "Revenue", "Cost", "Profit"}); err != nil {
		return err
	}
	for _, r := range reports {
		record := []string{
			r.Name,
			strconv.Itoa(r.QuantitySold),
			strconv.FormatInt(r.Revenue, 10),
			strconv.FormatInt(r.BatchCost, 10),
			strconv.FormatInt(r.Profit, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
