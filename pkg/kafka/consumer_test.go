package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func newTestConsumer(handler MessageHandler) (*Consumer, *[]time.Duration) {
	var waits []time.Duration
	c := &Consumer{
		cfg:     ConsumerConfig{RetryBackoff: time.Second, MaxRetryBackoff: 3 * time.Second},
		logger:  ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}),
		handler: handler,
		sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return ctx.Err()
		},
	}
	return c, &waits
}

func orderMessage() kafka.Message {
	return kafka.Message{
		Topic: "orders",
		Value: []byte(`{"type":"order.upserted","order":{"id":"o1"}}`),
	}
}

func TestConsumerHandle(t *testing.T) {
	t.Run("retries with capped backoff until the handler succeeds", func(t *testing.T) {
		calls := 0
		c, waits := newTestConsumer(func(context.Context, *IncomingMessage) error {
			calls++
			if calls < 4 {
				return errors.New("deadlock detected")
			}
			return nil
		})

		assert.True(t, c.handle(context.Background(), orderMessage()))
		assert.Equal(t, 4, calls)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *waits)
	})

	t.Run("malformed message is committed without calling the handler", func(t *testing.T) {
		called := false
		c, _ := newTestConsumer(func(context.Context, *IncomingMessage) error {
			called = true
			return nil
		})

		assert.True(t, c.handle(context.Background(), kafka.Message{Value: []byte("not json")}))
		assert.False(t, called)
	})

	t.Run("gives up without commit when stopped", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		c, _ := newTestConsumer(func(context.Context, *IncomingMessage) error {
			cancel()
			return errors.New("database unavailable")
		})

		assert.False(t, c.handle(ctx, orderMessage()))
	})
}

func TestConsumerConfigDefaults(t *testing.T) {
	cfg := ConsumerConfig{}.withDefaults()

	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryBackoff)
}
