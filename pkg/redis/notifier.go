package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultRulesChannel is the pub/sub channel rule and settings changes are announced on
const DefaultRulesChannel = "customers:rules-changed"

// RulesChangedEvent is the payload published when tag rules or classification
// settings change.
type RulesChangedEvent struct {
	Source      string    `json:"source"`
	Reason      string    `json:"reason,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Notifier fans "rules changed" signals out to every worker through Redis
// pub/sub. Each Notifier has an instance id so it can ignore its own
// announcements.
type Notifier struct {
	client     *Client
	channel    string
	instanceID string
}

// NewNotifier creates a notifier on the given channel
func NewNotifier(client *Client, channel string) *Notifier {
	if channel == "" {
		channel = DefaultRulesChannel
	}
	return &Notifier{
		client:     client,
		channel:    channel,
		instanceID: uuid.New().String(),
	}
}

// InstanceID returns the id this notifier stamps on its announcements
func (n *Notifier) InstanceID() string {
	return n.instanceID
}

// Publish announces that rules or settings changed
func (n *Notifier) Publish(ctx context.Context, reason string) error {
	payload, err := json.Marshal(RulesChangedEvent{
		Source:      n.instanceID,
		Reason:      reason,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rules changed event: %w", err)
	}

	receivers, err := n.client.rdb.Publish(ctx, n.channel, payload).Result()
	if err != nil {
		n.client.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish to channel %s", n.channel)
		return err
	}

	n.client.logger.WithContext(ctx).Debugf("Published rules changed (reason=%s receivers=%d)", reason, receivers)
	return nil
}

// Subscribe calls handler for every announcement from another instance until
// ctx is cancelled. Handler errors are logged and do not stop the
// subscription.
func (n *Notifier) Subscribe(ctx context.Context, handler func(ctx context.Context, event RulesChangedEvent) error) error {
	sub := n.client.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	// wait for the subscription to be confirmed before reporting started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}

	n.client.logger.WithContext(ctx).Infof("Subscribed to %s", n.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			event, own, err := n.decode(msg.Payload)
			if err != nil {
				n.client.logger.WithContext(ctx).WithError(err).Warn("Ignoring malformed rules changed message")
				continue
			}
			if own {
				continue
			}
			if err := handler(ctx, event); err != nil {
				n.client.logger.WithContext(ctx).WithError(err).Error("Failed to handle rules changed event")
			}
		}
	}
}

func (n *Notifier) decode(payload string) (RulesChangedEvent, bool, error) {
	var event RulesChangedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return RulesChangedEvent{}, false, err
	}
	return event, event.Source == n.instanceID, nil
}
