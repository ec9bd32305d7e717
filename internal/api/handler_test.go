package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/service"
	"shopledger/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.NewStore()
	ledger := service.NewLedgerService(st, nil, nil, 15)
	recorder := service.NewRecorderService(st, nil, nil)
	reports := service.NewReportService(st, nil, 30*time.Second)

	router := gin.New()
	NewHandler(ledger, recorder, reports).SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

var actorHeaders = map[string]string{
	"X-Actor-ID":       "u1",
	"X-Actor-Username": "emeka",
}

func createTestProduct(t *testing.T, router *gin.Engine) models.Product {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/products", gin.H{
		"name":           "Rice",
		"batch_cost":     5000,
		"stock_quantity": 50,
		"unit_price":     200,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var product models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &product))
	return product
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", product.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/v1/products/%d/price", product.ID),
		gin.H{"unit_price": 250}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/restock", product.ID),
		gin.H{"delta": 25}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var restock struct {
		StockQuantity int `json:"stock_quantity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restock))
	assert.Equal(t, 75, restock.StockQuantity)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/products/%d/stock", product.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stock struct {
		StockQuantity int `json:"stock_quantity"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stock))
	assert.Equal(t, 75, stock.StockQuantity)

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/products/%d/finish", product.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/products?active=true", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Products []models.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Products)
}

func TestRecordSaleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sales", gin.H{
		"product_id": product.ID,
		"quantity":   10,
	}, actorHeaders)
	require.Equal(t, http.StatusCreated, w.Code)

	var sale models.Sale
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sale))
	assert.Equal(t, int64(2000), sale.Amount)
	assert.Equal(t, "emeka", sale.ActorUsername)

	// Overselling maps to 409 and leaves stock untouched.
	w = doJSON(t, router, http.MethodPost, "/api/v1/sales", gin.H{
		"product_id": product.ID,
		"quantity":   41,
	}, actorHeaders)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", product.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Product
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, 40, updated.StockQuantity)
}

func TestRecordSaleRequiresActorIdentity(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sales", gin.H{
		"product_id": product.ID,
		"quantity":   1,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReverseSaleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sales", gin.H{
		"product_id": product.ID,
		"quantity":   10,
	}, actorHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	var sale models.Sale
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sale))

	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", sale.ID), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Reversing again is a 404; the record is gone.
	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", sale.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIdempotencyKeyHeader(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	headers := map[string]string{
		"X-Actor-ID":       "u1",
		"X-Actor-Username": "emeka",
		"Idempotency-Key":  "receipt-42",
	}

	body := gin.H{"product_id": product.ID, "quantity": 5}

	w := doJSON(t, router, http.MethodPost, "/api/v1/sales", body, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	var first models.Sale
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = doJSON(t, router, http.MethodPost, "/api/v1/sales", body, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	var second models.Sale
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.ID, second.ID)
}

func TestErrorStatusMapping(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/products/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/products/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/products", gin.H{
		"name":       "Rice",
		"batch_cost": -5,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportEndpoints(t *testing.T) {
	router := newTestRouter(t)
	product := createTestProduct(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sales", gin.H{
		"product_id": product.ID,
		"quantity":   10,
	}, actorHeaders)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/reports/summary", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, int64(2000), summary.TotalRevenue)
	assert.Equal(t, int64(-3000), summary.TotalProfit)

	w = doJSON(t, router, http.MethodGet, "/api/v1/reports/export.csv", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Batch,Qty Sold,Revenue,Cost,Profit")
	assert.Contains(t, w.Body.String(), "Rice,10,2000,5000,-3000")

	w = doJSON(t, router, http.MethodPost, "/api/v1/admin/reconcile", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec struct {
		DriftCount int `json:"drift_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 0, rec.DriftCount)
}
