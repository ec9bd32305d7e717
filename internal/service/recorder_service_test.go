package service

import (
	"context"
	"testing"

	"shopledger/internal/models"
	"shopledger/internal/store"
	"shopledger/internal/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) (*LedgerService, *RecorderService, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	ledger := NewLedgerService(st, nil, nil, 15)
	recorder := NewRecorderService(st, nil, nil)
	return ledger, recorder, st
}

func createBatch(t *testing.T, ledger *LedgerService, name string, batchCost int64, stock int, unitPrice int64) *models.Product {
	t.Helper()
	product, err := ledger.CreateProduct(context.Background(), &CreateProductRequest{
		Name:          name,
		BatchCost:     batchCost,
		StockQuantity: stock,
		UnitPrice:     unitPrice,
	})
	require.NoError(t, err)
	return product
}

func TestRecordSaleUpdatesLedger(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()

	product := createBatch(t, ledger, "Rice", 5000, 50, 200)

	sale, err := recorder.Record(ctx, &RecordSaleRequest{
		ProductID: product.ID,
		Quantity:  10,
	}, models.Actor{ID: "u1", Username: "emeka"})
	require.NoError(t, err)

	assert.Equal(t, 10, sale.Quantity)
	assert.Equal(t, int64(200), sale.UnitPrice)
	assert.Equal(t, int64(2000), sale.Amount)
	assert.Equal(t, "Rice", sale.ProductName)
	assert.Equal(t, "emeka", sale.ActorUsername)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.StockQuantity)
	assert.Equal(t, 10, updated.TotalQuantitySold)
	assert.Equal(t, int64(2000), updated.TotalAmountSold)

	profit, err := ledger.ComputeProfit(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-3000), profit)
}

func TestRecordSaleInsufficientStockLeavesStateUnchanged(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()

	product := createBatch(t, ledger, "Rice", 5000, 50, 200)

	_, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 10},
		models.Actor{ID: "u1", Username: "emeka"})
	require.NoError(t, err)

	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 41},
		models.Actor{ID: "u1", Username: "emeka"})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.StockQuantity)
	assert.Equal(t, 10, updated.TotalQuantitySold)
	assert.Equal(t, int64(2000), updated.TotalAmountSold)

	quantity, amount, err := recorder.TotalsForProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, quantity)
	assert.Equal(t, int64(2000), amount)
}

func TestReverseIsExactInverse(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()

	product := createBatch(t, ledger, "Rice", 5000, 50, 200)

	sale, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 10},
		models.Actor{ID: "u1", Username: "emeka"})
	require.NoError(t, err)

	reversed, err := recorder.Reverse(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, reversed)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.StockQuantity)
	assert.Equal(t, 0, updated.TotalQuantitySold)
	assert.Equal(t, int64(0), updated.TotalAmountSold)

	quantity, amount, err := recorder.TotalsForProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, quantity)
	assert.Equal(t, int64(0), amount)
}

func TestReverseUnknownSaleReturnsFalse(t *testing.T) {
	_, recorder, _ := newTestServices(t)

	reversed, err := recorder.Reverse(context.Background(), 9999)
	require.NoError(t, err)
	assert.False(t, reversed)
}

func TestRecordSaleWithPriceOverride(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()

	product := createBatch(t, ledger, "Beans", 1000, 30, 150)

	sale, err := recorder.Record(ctx, &RecordSaleRequest{
		ProductID:         product.ID,
		Quantity:          3,
		UnitPriceOverride: 120,
	}, models.Actor{ID: "u2", Username: "ada"})
	require.NoError(t, err)

	assert.Equal(t, int64(120), sale.UnitPrice)
	assert.Equal(t, int64(360), sale.Amount)

	// Override is a per-sale snapshot; the product's price is untouched.
	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), updated.UnitPrice)
}

func TestRecordSaleValidation(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1", Username: "emeka"}

	product := createBatch(t, ledger, "Garri", 500, 10, 100)
	unpriced := createBatch(t, ledger, "Yam", 500, 10, 0)

	_, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 0}, actor)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: -2}, actor)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: unpriced.ID, Quantity: 1}, actor)
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: 424242, Quantity: 1}, actor)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordSaleIdempotencyKey(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1", Username: "emeka"}

	product := createBatch(t, ledger, "Rice", 5000, 50, 200)

	first, err := recorder.Record(ctx, &RecordSaleRequest{
		ProductID:      product.ID,
		Quantity:       5,
		IdempotencyKey: "pos-receipt-77",
	}, actor)
	require.NoError(t, err)

	second, err := recorder.Record(ctx, &RecordSaleRequest{
		ProductID:      product.ID,
		Quantity:       5,
		IdempotencyKey: "pos-receipt-77",
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, updated.StockQuantity)
	assert.Equal(t, 5, updated.TotalQuantitySold)
}

func TestTotalsMatchSaleLogAfterMixedSequence(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1", Username: "emeka"}

	product := createBatch(t, ledger, "Rice", 5000, 100, 200)

	var saleIDs []int64
	for _, qty := range []int{5, 3, 12, 1} {
		sale, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: qty}, actor)
		require.NoError(t, err)
		saleIDs = append(saleIDs, sale.ID)
	}

	reversed, err := recorder.Reverse(ctx, saleIDs[1])
	require.NoError(t, err)
	require.True(t, reversed)

	quantity, amount, err := recorder.TotalsForProduct(ctx, product.ID)
	require.NoError(t, err)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, quantity, updated.TotalQuantitySold)
	assert.Equal(t, amount, updated.TotalAmountSold)
	assert.Equal(t, 5+12+1, quantity)
	assert.Equal(t, int64((5+12+1)*200), amount)
	assert.Equal(t, 100-5-12-1, updated.StockQuantity)
}

func TestReconcileRepairsDriftedCounters(t *testing.T) {
	ledger, recorder, st := newTestServices(t)
	ctx := context.Background()
	actor := models.Actor{ID: "u1", Username: "emeka"}

	product := createBatch(t, ledger, "Rice", 5000, 50, 200)
	_, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 10}, actor)
	require.NoError(t, err)

	// Skew the cached counters behind the transactional path's back.
	st.CorruptTotals(product.ID, 4, 999)

	drifts, err := recorder.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, product.ID, drifts[0].ProductID)
	assert.Equal(t, 14, drifts[0].CachedQuantity)
	assert.Equal(t, 10, drifts[0].ActualQuantity)

	updated, err := ledger.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, updated.TotalQuantitySold)
	assert.Equal(t, int64(2000), updated.TotalAmountSold)

	// A clean ledger reconciles to nothing.
	drifts, err = recorder.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestRecentAndActorQueries(t *testing.T) {
	ledger, recorder, _ := newTestServices(t)
	ctx := context.Background()

	product := createBatch(t, ledger, "Rice", 5000, 100, 200)

	_, err := recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 1},
		models.Actor{ID: "u1", Username: "emeka"})
	require.NoError(t, err)
	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 2},
		models.Actor{ID: "u2", Username: "ada"})
	require.NoError(t, err)
	_, err = recorder.Record(ctx, &RecordSaleRequest{ProductID: product.ID, Quantity: 3},
		models.Actor{ID: "u1", Username: "emeka"})
	require.NoError(t, err)

	recent, err := recorder.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 3, recent[0].Quantity)

	mine, err := recorder.RecentByActor(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	for _, sale := range mine {
		assert.Equal(t, "u1", sale.ActorID)
	}

	quantity, amount, err := recorder.ActorTotalsToday(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, quantity)
	assert.Equal(t, int64(800), amount)

	byDay, err := recorder.SalesByDay(ctx, 7)
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, 6, byDay[0].TotalQuantity)
	assert.Equal(t, int64(1200), byDay[0].TotalAmount)
}
