package models

import "time"

// Event types
const (
	EventTypeSaleRecorded     = "SALE_RECORDED"
	EventTypeSaleReversed     = "SALE_REVERSED"
	EventTypeProductRestocked = "PRODUCT_RESTOCKED"
	EventTypeBatchFinished    = "BATCH_FINISHED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleRecordedEvent published after a sale commits
type SaleRecordedEvent struct {
	BaseEvent
	SaleID        int64  `json:"sale_id"`
	ProductID     int64  `json:"product_id"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unit_price"`
	Amount        int64  `json:"amount"`
	StockAfter    int    `json:"stock_after"`
	ActorID       string `json:"actor_id"`
	ActorUsername string `json:"actor_username"`
}

// SaleReversedEvent published after a sale is reversed
type SaleReversedEvent struct {
	BaseEvent
	SaleID     int64 `json:"sale_id"`
	ProductID  int64 `json:"product_id"`
	Quantity   int   `json:"quantity"`
	Amount     int64 `json:"amount"`
	StockAfter int   `json:"stock_after"`
}

// ProductRestockedEvent published after a restock (delta may be negative)
type ProductRestockedEvent struct {
	BaseEvent
	ProductID  int64 `json:"product_id"`
	Delta      int   `json:"delta"`
	StockAfter int   `json:"stock_after"`
}

// BatchFinishedEvent published when a batch is marked finished
type BatchFinishedEvent struct {
	BaseEvent
	ProductID int64 `json:"product_id"`
}
