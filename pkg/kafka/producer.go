package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Config holds Kafka configuration
type Config struct {
	Brokers    []string
	Topic      string
	ErrorTopic string
}

// ParseConfig parses a comma-separated broker string
func ParseConfig(brokers, topic, errorTopic string) Config {
	var brokerList []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	return Config{Brokers: brokerList, Topic: topic, ErrorTopic: errorTopic}
}

// Producer publishes domain events. Failure events go to the error topic when one is set.
type Producer struct {
	brokers     []string
	writer      *kafka.Writer
	errorWriter *kafka.Writer
	logger      ectologger.Logger
}

var _ Publisher = (*Producer)(nil)

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		// dev clusters may not have the topic yet
		AllowAutoTopicCreation: true,
	}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger ectologger.Logger) *Producer {
	p := &Producer{
		brokers: cfg.Brokers,
		writer:  newWriter(cfg.Brokers, cfg.Topic),
		logger:  logger,
	}
	if cfg.ErrorTopic != "" {
		p.errorWriter = newWriter(cfg.Brokers, cfg.ErrorTopic)
	}
	return p
}

// Close closes the producer
func (p *Producer) Close() error {
	var firstErr error
	if err := p.writer.Close(); err != nil {
		firstErr = err
	}
	if p.errorWriter != nil {
		if err := p.errorWriter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Publish writes one event keyed by tenant and account so events of an account stay ordered
func (p *Producer) Publish(ctx context.Context, evt *Event) error {
	if evt == nil {
		return fmt.Errorf("event is nil")
	}

	writer := p.writer
	if evt.Type.IsFailure() && p.errorWriter != nil {
		writer = p.errorWriter
	}

	ctx, span := tracing.StartSpan(ctx, "Kafka.Publish",
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", writer.Topic),
		attribute.String("messaging.operation", "publish"),
		attribute.String("event.type", string(evt.Type)),
		attribute.String("tenant_id", evt.TenantID),
	)
	defer span.End()

	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.TraceID = tracing.GetTraceID(ctx)
	evt.SpanID = tracing.GetSpanID(ctx)

	data, err := json.Marshal(evt)
	if err != nil {
		tracing.Fail(span, err, "failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := []kafka.Header{
		{Key: "type", Value: []byte(evt.Type)},
		{Key: "tenant_id", Value: []byte(evt.TenantID)},
		{Key: "platform", Value: []byte(evt.Platform)},
	}
	if traceparent := tracing.GetTraceParent(ctx); traceparent != "" {
		headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceparent)})
	}
	if tracestate := tracing.GetTraceState(ctx); tracestate != "" {
		headers = append(headers, kafka.Header{Key: "tracestate", Value: []byte(tracestate)})
	}

	start := time.Now()
	err = writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(evt.Key()),
		Value:   data,
		Headers: headers,
	})
	if err != nil {
		metrics.RecordKafkaPublish(writer.Topic, "error", time.Since(start).Seconds())
		tracing.Fail(span, err, "failed to publish event")
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to publish %s to Kafka topic %s", evt.Type, writer.Topic)
		return err
	}

	metrics.RecordKafkaPublish(writer.Topic, "success", time.Since(start).Seconds())
	span.SetStatus(codes.Ok, "event published")
	p.logger.WithContext(ctx).Debugf("Published %s event to %s: key=%s", evt.Type, writer.Topic, evt.Key())
	return nil
}

// Ping dials the brokers until one answers
func (p *Producer) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no kafka brokers configured")
	}
	return lastErr
}

// Stats returns producer statistics
func (p *Producer) Stats() kafka.WriterStats {
	return p.writer.Stats()
}
