package memory

import (
	"context"
	"testing"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *Store, name string, stock int, unitPrice int64) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          name,
		BatchCost:     1000,
		UnitPrice:     unitPrice,
		StockQuantity: stock,
		Status:        models.ProductStatusActive,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestRecordSaleTxResolvesPriceInsideLock(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedProduct(t, s, "Rice", 50, 200)

	sale := &models.Sale{ProductID: p.ID, Quantity: 4}
	stockAfter, err := s.RecordSaleTx(ctx, sale)
	require.NoError(t, err)

	assert.Equal(t, 46, stockAfter)
	assert.Equal(t, int64(200), sale.UnitPrice)
	assert.Equal(t, int64(800), sale.Amount)
	assert.Equal(t, "Rice", sale.ProductName)
	assert.NotZero(t, sale.ID)
	assert.False(t, sale.RecordedAt.IsZero())
}

func TestRecordSaleTxRejectsUnpricedSale(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedProduct(t, s, "Yam", 10, 0)

	_, err := s.RecordSaleTx(ctx, &models.Sale{ProductID: p.ID, Quantity: 1})
	assert.ErrorIs(t, err, store.ErrInvalidInput)

	// An explicit price on the sale itself is enough.
	sale := &models.Sale{ProductID: p.ID, Quantity: 1, UnitPrice: 300}
	_, err = s.RecordSaleTx(ctx, sale)
	require.NoError(t, err)
	assert.Equal(t, int64(300), sale.Amount)
}

func TestRecordSaleTxEnforcesStockFloor(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedProduct(t, s, "Rice", 3, 200)

	_, err := s.RecordSaleTx(ctx, &models.Sale{ProductID: p.ID, Quantity: 4})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity)
	assert.Equal(t, 0, got.TotalQuantitySold)

	// Selling down to exactly zero is allowed.
	stockAfter, err := s.RecordSaleTx(ctx, &models.Sale{ProductID: p.ID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 0, stockAfter)
}

func TestReverseSaleTxRestoresLedgerAndFreesIdempotencyKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedProduct(t, s, "Rice", 50, 200)

	sale := &models.Sale{ProductID: p.ID, Quantity: 10, IdempotencyKey: "k1"}
	_, err := s.RecordSaleTx(ctx, sale)
	require.NoError(t, err)

	reversed, stockAfter, err := s.ReverseSaleTx(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stockAfter)
	assert.Equal(t, sale.ID, reversed.ID)

	_, err = s.GetSaleByID(ctx, sale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	byKey, err := s.GetSaleByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, byKey)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalQuantitySold)
	assert.Equal(t, int64(0), got.TotalAmountSold)
}

func TestSaleTotalsByProduct(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rice := seedProduct(t, s, "Rice", 50, 200)
	beans := seedProduct(t, s, "Beans", 50, 100)

	for _, sale := range []*models.Sale{
		{ProductID: rice.ID, Quantity: 2},
		{ProductID: rice.ID, Quantity: 5},
		{ProductID: beans.ID, Quantity: 3},
	} {
		_, err := s.RecordSaleTx(ctx, sale)
		require.NoError(t, err)
	}

	totals, err := s.SaleTotalsByProduct(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, models.SaleTotals{ProductID: rice.ID, TotalQuantity: 7, TotalAmount: 1400}, totals[0])
	assert.Equal(t, models.SaleTotals{ProductID: beans.ID, TotalQuantity: 3, TotalAmount: 300}, totals[1])
}

func TestActorSalesBetweenWindowIsHalfOpen(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedProduct(t, s, "Rice", 50, 200)

	sale := &models.Sale{ProductID: p.ID, Quantity: 2, ActorID: "u1"}
	_, err := s.RecordSaleTx(ctx, sale)
	require.NoError(t, err)

	from := sale.RecordedAt.Add(-time.Minute)
	to := sale.RecordedAt.Add(time.Minute)

	qty, amount, err := s.ActorSalesBetween(ctx, "u1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
	assert.Equal(t, int64(400), amount)

	// The upper bound is exclusive.
	qty, _, err = s.ActorSalesBetween(ctx, "u1", from, sale.RecordedAt)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	qty, _, err = s.ActorSalesBetween(ctx, "u2", from, to)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)
}

func TestEventProcessing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	processed, err := s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", "SALE_RECORDED"))

	processed, err = s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, processed)
}
