package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/service"
	"shopledger/internal/store"
	"shopledger/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	ledger   *service.LedgerService
	recorder *service.RecorderService
	reports  *service.ReportService
}

// NewHandler creates a new HTTP handler
func NewHandler(ledger *service.LedgerService, recorder *service.RecorderService, reports *service.ReportService) *Handler {
	return &Handler{
		ledger:   ledger,
		recorder: recorder,
		reports:  reports,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/search", h.searchProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PATCH("/products/:id", h.updateProduct)
		v1.DELETE("/products/:id", h.deleteProduct)
		v1.PUT("/products/:id/price", h.setPrice)
		v1.POST("/products/:id/restock", h.restock)
		v1.POST("/products/:id/finish", h.markFinished)
		v1.GET("/products/:id/profit", h.profit)
		v1.GET("/products/:id/stock", h.stockLevel)
		v1.GET("/products/:id/totals", h.productTotals)

		v1.POST("/sales", h.recordSale)
		v1.DELETE("/sales/:id", h.reverseSale)
		v1.GET("/sales/recent", h.recentSales)
		v1.GET("/sales/by-day", h.salesByDay)
		v1.GET("/sales/mine", h.mySales)
		v1.GET("/sales/mine/today", h.myTotalsToday)

		v1.GET("/reports/summary", h.reportSummary)
		v1.GET("/reports/products", h.reportProducts)
		v1.GET("/reports/trend", h.reportTrend)
		v1.GET("/reports/export.csv", h.exportCSV)

		v1.POST("/admin/reconcile", h.reconcile)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.ledger.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	var (
		products []models.Product
		err      error
	)
	if c.Query("active") == "true" {
		products, err = h.ledger.ListActiveProducts(c.Request.Context())
	} else {
		products, err = h.ledger.ListProducts(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) searchProducts(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	products, err := h.ledger.SearchByName(c.Request.Context(), query, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	product, err := h.ledger.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var upd models.ProductUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.ledger.UpdateProduct(c.Request.Context(), id, upd); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.ledger.DeleteProduct(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) setPrice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		UnitPrice int64 `json:"unit_price" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if err := h.ledger.SetPrice(c.Request.Context(), id, req.UnitPrice); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (h *Handler) restock(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Delta int `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	stockAfter, err := h.ledger.Restock(c.Request.Context(), id, req.Delta)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock_quantity": stockAfter})
}

func (h *Handler) markFinished(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.ledger.MarkFinished(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.ProductStatusFinished})
}

func (h *Handler) profit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	profit, err := h.ledger.ComputeProfit(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "profit": profit})
}

func (h *Handler) stockLevel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stock, err := h.ledger.StockLevel(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "stock_quantity": stock})
}

func (h *Handler) productTotals(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	quantity, amount, err := h.recorder.TotalsForProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":     id,
		"total_quantity": quantity,
		"total_amount":   amount,
	})
}

func (h *Handler) recordSale(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req service.RecordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	sale, err := h.recorder.Record(c.Request.Context(), &req, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) reverseSale(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reversed, err := h.recorder.Reverse(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !reversed {
		c.JSON(http.StatusNotFound, gin.H{"error": "Sale not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reversed": true})
}

func (h *Handler) recentSales(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sales, err := h.recorder.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) salesByDay(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	byDay, err := h.recorder.SalesByDay(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": byDay})
}

func (h *Handler) mySales(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sales, err := h.recorder.RecentByActor(c.Request.Context(), actor.ID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (h *Handler) myTotalsToday(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	quantity, amount, err := h.recorder.ActorTotalsToday(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items_sold": quantity, "amount": amount})
}

func (h *Handler) reportSummary(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) reportProducts(c *gin.Context) {
	reports, err := h.reports.ProductReports(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": reports})
}

func (h *Handler) reportTrend(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	trend, err := h.reports.Trend(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trend": trend})
}

func (h *Handler) exportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="business_report.csv"`)
	if err := h.reports.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		respondError(c, err)
	}
}

func (h *Handler) reconcile(c *gin.Context) {
	drifts, err := h.recorder.Reconcile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drift_count": len(drifts), "drifts": drifts})
}

// requireActor reads the actor identity set by the upstream auth proxy.
// The core never inspects sessions itself.
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor := models.Actor{
		ID:       c.GetHeader("X-Actor-ID"),
		Username: c.GetHeader("X-Actor-Username"),
	}
	if actor.ID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing actor identity"})
		return models.Actor{}, false
	}
	return actor, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

// respondError maps the ledger error taxonomy onto HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInconsistentState):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
