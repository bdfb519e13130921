// Package redpanda publishes evaluation workflow events to a Kafka-compatible
// broker with franz-go.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gestor-t/neuroeval/internal/domain/evaluation"
)

// ProducerConfig holds configuration for the event producer
type ProducerConfig struct {
	// Brokers is a list of broker addresses
	Brokers []string
	// ClientID identifies this service to the broker
	ClientID string
	// Topic receives every workflow event
	Topic string
	// LingerMS is the time to wait before sending a batch
	LingerMS int64
	// MaxBufferedRecords bounds the in-memory queue; Publish drops beyond it
	MaxBufferedRecords int
	// Compression is the compression codec to use
	Compression string
	// RequiredAcks sets the required acks level (-1 for all, 1 for leader)
	RequiredAcks int16
	// MaxRetries is the maximum number of retries for failed sends
	MaxRetries int
	// RetryBackoffMS is the backoff time between retries
	RetryBackoffMS int64
}

// DefaultProducerConfig returns defaults for a low-volume audit stream
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Brokers:            []string{"localhost:9092"},
		ClientID:           "neuroeval",
		Topic:              TopicEvaluationEvents,
		LingerMS:           10,
		MaxBufferedRecords: 10_000,
		Compression:        "lz4",
		RequiredAcks:       -1,
		MaxRetries:         3,
		RetryBackoffMS:     100,
	}
}

// Producer ships workflow events without blocking the caller
type Producer struct {
	client   *kgo.Client
	config   ProducerConfig
	logger   *zap.Logger
	tracer   trace.Tracer
	onResult func(ok bool)
}

// ProducerOption customizes a Producer
type ProducerOption func(*Producer)

// WithResultHook is called once per event with the delivery outcome
func WithResultHook(fn func(ok bool)) ProducerOption {
	return func(p *Producer) { p.onResult = fn }
}

// NewProducer creates a producer. No connection is made until the first event.
func NewProducer(cfg ProducerConfig, logger *zap.Logger, opts ...ProducerOption) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = TopicEvaluationEvents
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS) * time.Millisecond),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RetryBackoffFn(func(attempt int) time.Duration {
			return time.Duration(cfg.RetryBackoffMS) * time.Millisecond * time.Duration(attempt+1)
		}),
	}

	switch cfg.RequiredAcks {
	case 0:
		kopts = append(kopts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	case 1:
		kopts = append(kopts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	default:
		kopts = append(kopts, kgo.RequiredAcks(kgo.AllISRAcks()))
	}

	switch cfg.Compression {
	case "lz4":
		kopts = append(kopts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "snappy":
		kopts = append(kopts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "gzip":
		kopts = append(kopts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "zstd":
		kopts = append(kopts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Producer{
		client: client,
		config: cfg,
		logger: logger,
		tracer: otel.Tracer("redpanda-producer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish implements evaluation.EventPublisher. The record is buffered and
// sent in the background; a full buffer drops the event with an error log.
func (p *Producer) Publish(ctx context.Context, event *evaluation.Event) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := p.tracer.Start(ctx, "publish_event",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("topic", p.config.Topic),
			attribute.String("event_type", string(event.EventType)),
			attribute.String("session_id", event.SessionID),
		))

	record, err := buildRecord(ctx, p.config.Topic, event)
	if err != nil {
		span.RecordError(err)
		span.End()
		p.failed(event, err)
		return
	}

	p.client.TryProduce(ctx, record, func(r *kgo.Record, err error) {
		defer span.End()
		if err != nil {
			span.RecordError(err)
			p.failed(event, err)
			return
		}
		p.report(true)
		p.logger.Debug("event published",
			zap.String("event_type", string(event.EventType)),
			zap.Int("bytes", len(r.Value)),
			zap.Int32("partition", r.Partition),
			zap.Int64("offset", r.Offset))
	})
}

// buildRecord encodes an event keyed by session so a session's events stay ordered
func buildRecord(ctx context.Context, topic string, event *evaluation.Event) (*kgo.Record, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	injectTraceHeaders(ctx, record)
	return record, nil
}

func (p *Producer) failed(event *evaluation.Event, err error) {
	p.report(false)
	p.logger.Error("failed to publish event",
		zap.String("event_type", string(event.EventType)),
		zap.String("session_id", event.SessionID),
		zap.Error(err))
}

func (p *Producer) report(ok bool) {
	if p.onResult != nil {
		p.onResult(ok)
	}
}

// Flush blocks until all buffered records are sent
func (p *Producer) Flush(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "flush")
	defer span.End()

	if err := p.client.Flush(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// Close flushes within the context deadline and closes the client
func (p *Producer) Close(ctx context.Context) {
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("error flushing on close", zap.Error(err))
	}
	p.client.Close()
}

// Ping checks broker connectivity
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// headerCarrier adapts record headers to the otel propagator
type headerCarrier struct {
	record *kgo.Record
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.record.Headers {
		if h.Key == key {
			c.record.Headers[i].Value = []byte(value)
			return
		}
	}
	c.record.Headers = append(c.record.Headers, kgo.RecordHeader{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c.record.Headers))
	for i, h := range c.record.Headers {
		keys[i] = h.Key
	}
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

// injectTraceHeaders adds the trace context of ctx to the record headers
func injectTraceHeaders(ctx context.Context, record *kgo.Record) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{record: record})
}
