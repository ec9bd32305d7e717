package models

import "time"

// Product statuses
const (
	ProductStatusActive   = "active"
	ProductStatusFinished = "finished"
)

// Product represents a single batch of stock. Monetary fields are minor
// units (cents). BatchCost is the one-time acquisition cost of the whole
// batch, not a per-unit figure.
type Product struct {
	ID                int64     `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	BatchCost         int64     `db:"batch_cost" json:"batch_cost"`
	UnitPrice         int64     `db:"unit_price" json:"unit_price"`
	StockQuantity     int       `db:"stock_quantity" json:"stock_quantity"`
	Status            string    `db:"status" json:"status"`
	TotalQuantitySold int       `db:"total_quantity_sold" json:"total_quantity_sold"`
	TotalAmountSold   int64     `db:"total_amount_sold" json:"total_amount_sold"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Profit returns the whole-batch margin to date.
func (p *Product) Profit() int64 {
	return p.TotalAmountSold - p.BatchCost
}

// Sale is an immutable record of one sale against a product. ProductName
// and UnitPrice are snapshots taken at recording time so the record
// survives later renames and reprices.
type Sale struct {
	ID             int64     `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	ProductName    string    `db:"product_name" json:"product_name"`
	Quantity       int       `db:"quantity" json:"quantity"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
	Amount         int64     `db:"amount" json:"amount"`
	ActorID        string    `db:"actor_id" json:"actor_id"`
	ActorUsername  string    `db:"actor_username" json:"actor_username"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	RecordedAt     time.Time `db:"recorded_at" json:"recorded_at"`
}

// Actor identifies who recorded a sale. Supplied by the identity layer
// upstream and threaded through explicitly.
type Actor struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// SaleApplication is the outcome of applying a sale to the ledger: the
// effective price after override resolution and the computed amount.
type SaleApplication struct {
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
	Amount    int64 `json:"amount"`
}

// SaleTotals is the quantity/amount pair recomputed from the sale log.
type SaleTotals struct {
	ProductID     int64 `db:"product_id" json:"product_id"`
	TotalQuantity int   `db:"total_quantity" json:"total_quantity"`
	TotalAmount   int64 `db:"total_amount" json:"total_amount"`
}

// DaySales is one calendar day of aggregated sales.
type DaySales struct {
	Day           time.Time `db:"day" json:"day"`
	TotalQuantity int       `db:"total_quantity" json:"total_quantity"`
	TotalAmount   int64     `db:"total_amount" json:"total_amount"`
}

// TotalsDrift reports a product whose cached counters disagree with the
// sums over its sale log.
type TotalsDrift struct {
	ProductID      int64 `json:"product_id"`
	CachedQuantity int   `json:"cached_quantity"`
	ActualQuantity int   `json:"actual_quantity"`
	CachedAmount   int64 `json:"cached_amount"`
	ActualAmount   int64 `json:"actual_amount"`
}

// ProductReport is one row of the per-batch report/export.
type ProductReport struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	QuantitySold int    `json:"quantity_sold"`
	Revenue      int64  `json:"revenue"`
	BatchCost    int64  `json:"batch_cost"`
	Profit       int64  `json:"profit"`
}

// Summary aggregates the whole shop for the admin dashboard.
type Summary struct {
	TotalRevenue  int64 `json:"total_revenue"`
	TotalCost     int64 `json:"total_cost"`
	TotalProfit   int64 `json:"total_profit"`
	TotalQuantity int   `json:"total_quantity"`
	ActiveBatches int   `json:"active_batches"`
}

// ProcessedEvent for consumer-side idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}

// ProductUpdate carries a guarded partial update of product fields.
// Nil pointers leave the field untouched.
type ProductUpdate struct {
	Name          *string `json:"name,omitempty"`
	BatchCost     *int64  `json:"batch_cost,omitempty"`
	UnitPrice     *int64  `json:"unit_price,omitempty"`
	StockQuantity *int    `json:"stock_quantity,omitempty"`
	Status        *string `json:"status,omitempty"`
}
