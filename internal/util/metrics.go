package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of product batches created",
	})

	ProductsFinishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_finished_total",
		Help: "Total number of batches marked finished",
	})

	RestocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "restocks_total",
		Help: "Total number of restock adjustments",
	})

	SalesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_recorded_total",
		Help: "Total number of sales recorded",
	})

	SalesReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_reversed_total",
		Help: "Total number of sales reversed",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of rejected sale attempts",
	}, []string{"reason"})

	SaleApplyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_apply_latency_seconds",
		Help:    "Latency of the transactional sale application",
		Buckets: prometheus.DefBuckets,
	})

	ReconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_runs_total",
		Help: "Total number of reconciliation passes",
	})

	ReconcileDriftTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_drift_total",
		Help: "Total number of products whose cached totals drifted from the sale log",
	})

	StockLevel = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "product_stock_level",
		Help: "Current stock level per product",
	}, []string{"product_id"})

	CacheRefreshFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_refresh_failed_total",
		Help: "Total number of failed projection cache refreshes",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
