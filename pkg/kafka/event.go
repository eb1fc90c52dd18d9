package kafka

import (
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/database"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/models"
)

const (
	EventCustomerCreated = "customer.created"
	EventCustomerUpdated = "customer.updated"

	eventSchemaVersion = "1.0"
)

// CustomerEvent announces a committed customer write. Data is the full
// customer document after the write.
type CustomerEvent struct {
	EventType     string               `json:"event_type"`
	CustomerGUID  string               `json:"customer_guid"`
	ShopID        string               `json:"shop_id,omitempty"`
	CustomerGroup models.CustomerGroup `json:"customer_group,omitempty"`
	IsVIP         bool                 `json:"is_vip"`
	Data          json.RawMessage      `json:"data,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// NewCustomerEvent builds the event for a written customer. Extension data
// that JSON cannot encode (NaN, Inf) is sent in its sanitized form.
func NewCustomerEvent(customer models.Customer, created bool) (*CustomerEvent, error) {
	data, err := json.Marshal(customer)
	if err != nil {
		customer.Data, _ = database.Sanitize(customer.Data).(map[string]any)
		if data, err = json.Marshal(customer); err != nil {
			return nil, err
		}
	}

	event := &CustomerEvent{
		EventType:     EventCustomerUpdated,
		CustomerGUID:  customer.GUID,
		ShopID:        customer.ShopID,
		CustomerGroup: customer.CustomerGroup,
		IsVIP:         customer.IsVIP,
		Data:          data,
	}
	if created {
		event.EventType = EventCustomerCreated
	}
	return event, nil
}

// message keys the record by customer guid so one customer's events stay in
// order on a single partition.
func (e *CustomerEvent) message(topic, traceParent string) (kafka.Message, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "schema_version", Value: []byte(eventSchemaVersion)},
	}
	if e.ShopID != "" {
		headers = append(headers, kafka.Header{Key: "shop_id", Value: []byte(e.ShopID)})
	}
	if traceParent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
	}

	return kafka.Message{
		Topic:   topic,
		Key:     []byte(e.CustomerGUID),
		Value:   value,
		Headers: headers,
		Time:    e.Timestamp,
	}, nil
}
