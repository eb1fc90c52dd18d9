package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

// Order event types accepted on the input topic
const (
	EventOrderUpserted = "order.upserted"
	EventOrdersBatch   = "orders.batch"
	EventOrderResync   = "order.resync"
)

var ErrUnknownEventType = errors.New("unknown order event type")

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string

	// Parsed content
	Event *OrderEvent
}

// OrderEvent is the envelope published by the order ingestion pipeline. An
// upsert carries one order, a batch carries many, a resync carries only the
// order id.
type OrderEvent struct {
	Type    string         `json:"type"`
	Order   *models.Order  `json:"order,omitempty"`
	Orders  []models.Order `json:"orders,omitempty"`
	OrderID string         `json:"order_id,omitempty"`
}

// ParseOrderEvent parses the message value. The event type falls back to the
// "event_type" header when the body does not carry one.
func (m *IncomingMessage) ParseOrderEvent() error {
	var evt OrderEvent
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		return err
	}
	if evt.Type == "" {
		evt.Type = m.Headers["event_type"]
	}

	switch evt.Type {
	case EventOrderUpserted:
		if evt.Order == nil {
			return fmt.Errorf("%s event without order", evt.Type)
		}
	case EventOrdersBatch:
		if len(evt.Orders) == 0 {
			return fmt.Errorf("%s event without orders", evt.Type)
		}
	case EventOrderResync:
		if evt.OrderID == "" {
			evt.OrderID = m.Key
		}
		if evt.OrderID == "" {
			return fmt.Errorf("%s event without order id", evt.Type)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, evt.Type)
	}

	m.Event = &evt
	return nil
}

// BatchOrders returns the orders an upsert or batch event carries.
func (m *IncomingMessage) BatchOrders() []models.Order {
	if m.Event == nil {
		return nil
	}
	if m.Event.Order != nil {
		return []models.Order{*m.Event.Order}
	}
	return m.Event.Orders
}
