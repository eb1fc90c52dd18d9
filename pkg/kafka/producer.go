package kafka

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/jirikrizz/erihub-dev-sub006/pkg/metrics"
	"github.com/jirikrizz/erihub-dev-sub006/pkg/tracing"
)

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	// Compression is one of gzip, lz4, zstd, snappy or none; snappy when empty
	Compression string
}

// Producer writes customer events to the output topic
type Producer struct {
	writer *kafka.Writer
	topic  string
	logger ectologger.Logger
}

func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchSize:              cfg.BatchSize,
			BatchTimeout:           cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:            compressionCodec(cfg.Compression),
			AllowAutoTopicCreation: true,
		},
		topic:  cfg.Topic,
		logger: logger,
	}
}

func compressionCodec(name string) kafka.Compression {
	codecs := map[string]kafka.Compression{
		"gzip": kafka.Gzip,
		"lz4":  kafka.Lz4,
		"zstd": kafka.Zstd,
		"none": 0,
	}
	if codec, ok := codecs[name]; ok {
		return codec
	}
	return kafka.Snappy
}

// Close flushes pending batches.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// PublishCustomerEvents writes the events of one sync as a single batch.
func (p *Producer) PublishCustomerEvents(ctx context.Context, events []*CustomerEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishCustomerEvents")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  p.topic,
		"events": len(events),
	})

	messages, err := p.messages(ctx, events)
	if err != nil {
		log.WithError(err).Error("Failed to encode customer events")
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		metrics.RecordKafkaPublish(p.topic, "failed")
		log.WithError(err).Error("Failed to publish customer events")
		return err
	}

	metrics.RecordKafkaPublish(p.topic, "success")
	log.Debug("Published customer events")
	return nil
}

func (p *Producer) messages(ctx context.Context, events []*CustomerEvent) ([]kafka.Message, error) {
	traceParent := tracing.GetTraceParent(ctx)
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		msg, err := event.message(p.topic, traceParent)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
