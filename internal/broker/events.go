package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"shopledger/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing ledger domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleRecorded publishes SaleRecorded event
func (ep *EventPublisher) PublishSaleRecorded(ctx context.Context, event *models.SaleRecordedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSaleReversed publishes SaleReversed event
func (ep *EventPublisher) PublishSaleReversed(ctx context.Context, event *models.SaleReversedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishProductRestocked publishes ProductRestocked event
func (ep *EventPublisher) PublishProductRestocked(ctx context.Context, event *models.ProductRestockedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishBatchFinished publishes BatchFinished event
func (ep *EventPublisher) PublishBatchFinished(ctx context.Context, event *models.BatchFinishedEvent) error {
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSaleRecorded     func(context.Context, *models.SaleRecordedEvent) error
	onSaleReversed     func(context.Context, *models.SaleReversedEvent) error
	onProductRestocked func(context.Context, *models.ProductRestockedEvent) error
	onBatchFinished    func(context.Context, *models.BatchFinishedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSaleRecorded registers a handler for SaleRecorded events
func (eh *EventHandler) OnSaleRecorded(handler func(context.Context, *models.SaleRecordedEvent) error) {
	eh.onSaleRecorded = handler
}

// OnSaleReversed registers a handler for SaleReversed events
func (eh *EventHandler) OnSaleReversed(handler func(context.Context, *models.SaleReversedEvent) error) {
	eh.onSaleReversed = handler
}

// OnProductRestocked registers a handler for ProductRestocked events
func (eh *EventHandler) OnProductRestocked(handler func(context.Context, *models.ProductRestockedEvent) error) {
	eh.onProductRestocked = handler
}

// OnBatchFinished registers a handler for BatchFinished events
func (eh *EventHandler) OnBatchFinished(handler func(context.Context, *models.BatchFinishedEvent) error) {
	eh.onBatchFinished = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeSaleRecorded:
		if eh.onSaleRecorded != nil {
			var event models.SaleRecordedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleRecorded event: %w", err)
			}
			return eh.onSaleRecorded(ctx, &event)
		}

	case models.EventTypeSaleReversed:
		if eh.onSaleReversed != nil {
			var event models.SaleReversedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleReversed event: %w", err)
			}
			return eh.onSaleReversed(ctx, &event)
		}

	case models.EventTypeProductRestocked:
		if eh.onProductRestocked != nil {
			var event models.ProductRestockedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ProductRestocked event: %w", err)
			}
			return eh.onProductRestocked(ctx, &event)
		}

	case models.EventTypeBatchFinished:
		if eh.onBatchFinished != nil {
			var event models.BatchFinishedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal BatchFinished event: %w", err)
			}
			return eh.onBatchFinished(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
