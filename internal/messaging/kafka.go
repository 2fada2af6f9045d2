package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Topic is a Kafka topic name
type Topic string

const (
	TopicActivityFlagged Topic = "aml.activity.flagged"
	TopicActivityStatus  Topic = "aml.activity.status"
	TopicSarFiled        Topic = "aml.sar.filed"
)

// TopicFor routes an event type to its topic
func TopicFor(t aml.EventType) (Topic, error) {
	switch t {
	case aml.EventActivityFlagged:
		return TopicActivityFlagged, nil
	case aml.EventActivityStatusChanged:
		return TopicActivityStatus, nil
	case aml.EventSarFiled:
		return TopicSarFiled, nil
	}
	return "", fmt.Errorf("no topic for event type %q", t)
}

// KafkaConfig contains configuration for the Kafka event publisher
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Brokers      []string      `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	TopicPrefix  string        `mapstructure:"topic_prefix" yaml:"topic_prefix" json:"topic_prefix"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout" json:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks" yaml:"required_acks" json:"required_acks"`
	Compression  string        `mapstructure:"compression" yaml:"compression" json:"compression"`
	RetryMax     int           `mapstructure:"retry_max" yaml:"retry_max" json:"retry_max"`
}

// DefaultKafkaConfig waits for all in-sync replicas on every write
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		WriteTimeout: 5 * time.Second,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: int(kafka.RequireAll),
		Compression:  "snappy",
		RetryMax:     5,
	}
}

// messageWriter is the subset of *kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements aml.EventPublisher on top of kafka-go writers,
// one per topic. Events are keyed by activity id so that all events for one
// activity land on the same partition in order.
type KafkaPublisher struct {
	config    *KafkaConfig
	writers   map[Topic]messageWriter
	newWriter func(topic string) messageWriter
	logger    *zap.Logger
	mu        sync.RWMutex
}

// NewKafkaPublisher creates a publisher. Writers connect lazily.
func NewKafkaPublisher(config *KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	if config == nil {
		config = DefaultKafkaConfig()
	}
	p := &KafkaPublisher{
		config:  config,
		writers: make(map[Topic]messageWriter),
		logger:  logger.Named("kafka"),
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *KafkaPublisher) kafkaWriter(topic string) messageWriter {
	w := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: p.config.BatchTimeout,
		WriteTimeout: p.config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:  p.config.RetryMax,
	}
	switch p.config.Compression {
	case "gzip":
		w.Compression = kafka.Gzip
	case "lz4":
		w.Compression = kafka.Lz4
	case "zstd":
		w.Compression = kafka.Zstd
	case "none":
	default:
		w.Compression = kafka.Snappy
	}
	return w
}

// getWriter returns or creates a writer for the specified topic
func (p *KafkaPublisher) getWriter(topic Topic) messageWriter {
	p.mu.RLock()
	writer, exists := p.writers[topic]
	p.mu.RUnlock()
	if exists {
		return writer
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if writer, exists := p.writers[topic]; exists {
		return writer
	}
	writer = p.newWriter(p.config.TopicPrefix + string(topic))
	p.writers[topic] = writer
	return writer
}

// Publish writes the event synchronously and returns delivery failures
func (p *KafkaPublisher) Publish(ctx context.Context, ev aml.Event) error {
	topic, err := TopicFor(ev.Type)
	if err != nil {
		return err
	}
	msg, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for activity %s: %w", ev.Type, ev.ActivityID, err)
	}
	return nil
}

func encodeEvent(ev aml.Event) (kafka.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ActivityID),
		Value: data,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
			{Key: "user-id", Value: []byte(ev.UserID)},
		},
	}, nil
}

// Close closes every writer
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = err
			p.logger.Error("failed to close writer", zap.String("topic", string(topic)), zap.Error(err))
		}
	}
	return lastErr
}
