package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shopledger/internal/models"
	"shopledger/internal/store"
)

// Store is an in-memory store.Store used by unit tests. A single mutex
// section per operation gives the same all-or-nothing behavior the
// postgres transactions provide.
type Store struct {
	mu              sync.RWMutex
	nextProductID   int64
	nextSaleID      int64
	products        map[int64]*models.Product
	sales           map[int64]*models.Sale
	salesByIdem     map[string]int64
	processedEvents map[string]string
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		nextProductID:   1,
		nextSaleID:      1,
		products:        make(map[int64]*models.Product),
		sales:           make(map[int64]*models.Sale),
		salesByIdem:     make(map[string]int64),
		processedEvents: make(map[string]string),
	}
}

func (s *Store) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = s.nextProductID
	s.nextProductID++
	p.TotalQuantitySold = 0
	p.TotalAmountSold = 0
	p.CreatedAt = time.Now().UTC()

	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProduct(id)
}

func (s *Store) getProduct(id int64) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProducts(func(*models.Product) bool { return true }), nil
}

func (s *Store) ListActiveProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProducts(func(p *models.Product) bool {
		return p.Status == models.ProductStatusActive
	}), nil
}

func (s *Store) listProducts(keep func(*models.Product) bool) []models.Product {
	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) CountActiveProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.products {
		if p.Status == models.ProductStatusActive {
			count++
		}
	}
	return count, nil
}

func (s *Store) SearchProductsByName(_ context.Context, query string, limit int) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := s.listProducts(func(p *models.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), q)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SetProductPrice(_ context.Context, id int64, unitPrice int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.UnitPrice = unitPrice
	return nil
}

func (s *Store) RestockProduct(_ context.Context, id int64, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.StockQuantity += delta
	return p.StockQuantity, nil
}

func (s *Store) MarkProductFinished(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.Status = models.ProductStatusFinished
	return nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, upd models.ProductUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	if upd.Name != nil {
		p.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.BatchCost != nil {
		p.BatchCost = *upd.BatchCost
	}
	if upd.UnitPrice != nil {
		p.UnitPrice = *upd.UnitPrice
	}
	if upd.StockQuantity != nil {
		p.StockQuantity = *upd.StockQuantity
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	return nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	delete(s.products, id)
	return nil
}

func (s *Store) UpdateProductTotals(_ context.Context, id int64, quantity int, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return fmt.Errorf("product %d: %w", id, store.ErrNotFound)
	}
	p.TotalQuantitySold = quantity
	p.TotalAmountSold = amount
	return nil
}

func (s *Store) RecordSaleTx(_ context.Context, sale *models.Sale) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[sale.ProductID]
	if !ok {
		return 0, fmt.Errorf("product %d: %w", sale.ProductID, store.ErrNotFound)
	}
	if sale.UnitPrice == 0 {
		sale.UnitPrice = p.UnitPrice
	}
	if sale.UnitPrice <= 0 {
		return 0, fmt.Errorf("effective unit price must be positive: %w", store.ErrInvalidInput)
	}
	sale.Amount = int64(sale.Quantity) * sale.UnitPrice
	if p.StockQuantity < sale.Quantity {
		return 0, fmt.Errorf("product %d: have %d, want %d: %w",
			sale.ProductID, p.StockQuantity, sale.Quantity, store.ErrInsufficientStock)
	}

	p.StockQuantity -= sale.Quantity
	p.TotalQuantitySold += sale.Quantity
	p.TotalAmountSold += sale.Amount

	sale.ID = s.nextSaleID
	s.nextSaleID++
	sale.ProductName = p.Name
	sale.RecordedAt = time.Now().UTC()

	cp := *sale
	s.sales[sale.ID] = &cp
	if sale.IdempotencyKey != "" {
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	return p.StockQuantity, nil
}

func (s *Store) ReverseSaleTx(_ context.Context, saleID int64) (*models.Sale, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, 0, fmt.Errorf("sale %d: %w", saleID, store.ErrNotFound)
	}
	p, ok := s.products[sale.ProductID]
	if !ok {
		return nil, 0, fmt.Errorf("product %d for sale %d: %w", sale.ProductID, saleID, store.ErrNotFound)
	}

	delete(s.sales, saleID)
	if sale.IdempotencyKey != "" {
		delete(s.salesByIdem, sale.IdempotencyKey)
	}

	p.StockQuantity += sale.Quantity
	p.TotalQuantitySold -= sale.Quantity
	p.TotalAmountSold -= sale.Amount

	cp := *sale
	return &cp, p.StockQuantity, nil
}

func (s *Store) GetSaleByID(_ context.Context, id int64) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", id, store.ErrNotFound)
	}
	cp := *sale
	return &cp, nil
}

func (s *Store) GetSaleByIdempotencyKey(_ context.Context, key string) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, nil
	}
	cp := *s.sales[id]
	return &cp, nil
}

func (s *Store) RecentSales(_ context.Context, limit int) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent(func(*models.Sale) bool { return true }, limit), nil
}

func (s *Store) RecentSalesByActor(_ context.Context, actorID string, limit int) ([]models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent(func(sale *models.Sale) bool { return sale.ActorID == actorID }, limit), nil
}

func (s *Store) recent(keep func(*models.Sale) bool, limit int) []models.Sale {
	out := make([]models.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if keep(sale) {
			out = append(out, *sale)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) SaleTotalsForProduct(_ context.Context, productID int64) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var qty int
	var amount int64
	for _, sale := range s.sales {
		if sale.ProductID == productID {
			qty += sale.Quantity
			amount += sale.Amount
		}
	}
	return qty, amount, nil
}

func (s *Store) SaleTotalsByProduct(_ context.Context) ([]models.SaleTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byProduct := make(map[int64]*models.SaleTotals)
	for _, sale := range s.sales {
		t, ok := byProduct[sale.ProductID]
		if !ok {
			t = &models.SaleTotals{ProductID: sale.ProductID}
			byProduct[sale.ProductID] = t
		}
		t.TotalQuantity += sale.Quantity
		t.TotalAmount += sale.Amount
	}
	out := make([]models.SaleTotals, 0, len(byProduct))
	for _, t := range byProduct {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (s *Store) SalesByDay(_ context.Context, since time.Time) ([]models.DaySales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[time.Time]*models.DaySales)
	for _, sale := range s.sales {
		if sale.RecordedAt.Before(since) {
			continue
		}
		day := sale.RecordedAt.UTC().Truncate(24 * time.Hour)
		d, ok := byDay[day]
		if !ok {
			d = &models.DaySales{Day: day}
			byDay[day] = d
		}
		d.TotalQuantity += sale.Quantity
		d.TotalAmount += sale.Amount
	}
	out := make([]models.DaySales, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (s *Store) ActorSalesBetween(_ context.Context, actorID string, from, to time.Time) (int, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var qty int
	var amount int64
	for _, sale := range s.sales {
		if sale.ActorID != actorID {
			continue
		}
		if sale.RecordedAt.Before(from) || !sale.RecordedAt.Before(to) {
			continue
		}
		qty += sale.Quantity
		amount += sale.Amount
	}
	return qty, amount, nil
}

func (s *Store) CountSalesForProduct(_ context.Context, productID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sale := range s.sales {
		if sale.ProductID == productID {
			count++
		}
	}
	return count, nil
}

func (s *Store) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processedEvents[eventID]
	return ok, nil
}

func (s *Store) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedEvents[eventID] = eventType
	return nil
}

// CorruptTotals skews a product's cached counters directly, bypassing
// the transactional path. Test hook for reconciliation.
func (s *Store) CorruptTotals(id int64, quantityDelta int, amountDelta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		p.TotalQuantitySold += quantityDelta
		p.TotalAmountSold += amountDelta
	}
}
