package broker

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/pkg/config"
)

// Publisher sends keyed JSON events to a topic.
type Publisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
	Close() error
}

// KafkaPublisher writes events synchronously with acknowledgement from all replicas.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewPublisher returns a Kafka publisher when enabled, or a no-op publisher otherwise.
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("kafka disabled, approval events will not be published")
		return NopPublisher{}, nil
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka enabled but brokers or topic missing")
	}
	return NewKafkaPublisher(cfg, logger), nil
}

// NewKafkaPublisher builds the writer. SASL/PLAIN is used when a username is set.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) *KafkaPublisher {
	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			Transport:              transport,
			WriteTimeout:           10 * time.Second,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// Publish encodes payload as JSON and writes it under key. Same-key messages land on the same partition.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", p.writer.Topic, err)
	}
	p.logger.Debug("event published", zap.String("topic", p.writer.Topic), zap.String("key", key))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
