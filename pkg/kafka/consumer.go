package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

// MessageHandler syncs one order message. A returned error is retried.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// ConsumerConfig holds the order topic subscription
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// RetryBackoff is the first wait after a failed message, doubled up to
	// MaxRetryBackoff
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxRetryBackoff < c.RetryBackoff {
		c.MaxRetryBackoff = 30 * time.Second
	}
	return c
}

// Consumer reads the order topic and hands each message to the handler.
// Messages are committed only once handled or found malformed; a failing
// message is retried in place so later offsets of the partition never
// commit past it.
type Consumer struct {
	cfg     ConsumerConfig
	reader  *kafka.Reader
	logger  ectologger.Logger
	handler MessageHandler
	sleep   func(ctx context.Context, d time.Duration) error

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handler MessageHandler) *Consumer {
	cfg = cfg.withDefaults()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		cfg:     cfg,
		reader:  reader,
		logger:  logger,
		handler: handler,
		sleep:   sleepCtx,
	}
}

func (c *Consumer) GetName() string     { return "kafka-consumer" }
func (c *Consumer) DependsOn() []string { return []string{"postgres", "rules"} }

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic": c.cfg.Topic,
		"group": c.cfg.ConsumerGroup,
	}).Info("Order consumer started")
	return nil
}

// Stop waits for the in-flight message before closing the reader.
func (c *Consumer) Stop(context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) run(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch order message")
			continue
		}

		if !c.handle(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithContext(ctx).WithError(err).Error("Failed to commit order message")
		}
	}
}

// handle reports whether msg may be committed. It only gives up when ctx is
// cancelled, leaving the message for the next owner of the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	incoming := toIncoming(msg)
	ctx = tracing.ExtractTraceParent(ctx, incoming.TraceParent)
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.handle")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	if err := incoming.ParseOrderEvent(); err != nil {
		log.WithError(err).Error("Skipping malformed order message")
		metrics.RecordKafkaConsume("invalid")
		return true
	}

	backoff := c.cfg.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := c.handler(ctx, incoming)
		if err == nil {
			metrics.RecordKafkaConsume("success")
			return true
		}

		metrics.RecordKafkaConsume("failed")
		log.WithError(err).WithField("attempt", attempt).Warnf("Order sync failed, retrying in %s", backoff)
		if c.sleep(ctx, backoff) != nil {
			return false
		}
		backoff = min(backoff*2, c.cfg.MaxRetryBackoff)
	}
}

func toIncoming(msg kafka.Message) *IncomingMessage {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &IncomingMessage{
		Key:         string(msg.Key),
		Value:       msg.Value,
		Headers:     headers,
		Partition:   msg.Partition,
		Offset:      msg.Offset,
		Timestamp:   msg.Time,
		Topic:       msg.Topic,
		TraceParent: headers["traceparent"],
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
