// Package messaging provides Kafka-based fan-out of mining events to
// external consumers (dashboards, accounting pipelines) independent of
// the in-process events.Bus, which only serves this process's own
// subscribers.
package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bardlex/powminer/pkg/circuit"
	"github.com/bardlex/powminer/pkg/errors"
	"github.com/bardlex/powminer/pkg/retry"
)

// KafkaClient wraps kafka-go with JSON envelopes, connection pooling,
// and circuit-breaker-guarded retries.
type KafkaClient struct {
	brokers        []string
	logger         *slog.Logger
	writers        map[string]*kafka.Writer
	writersMu      sync.RWMutex
	circuitBreaker *circuit.Breaker
	retryConfig    *retry.Config
}

// NewKafkaClient creates a new Kafka client.
func NewKafkaClient(brokers []string, logger *slog.Logger) *KafkaClient {
	cbConfig := &circuit.Config{
		MaxFailures:     5,
		SuccessRequired: 3,
		Timeout:         15 * time.Second,
		ResetTimeout:    60 * time.Second,
	}

	return &KafkaClient{
		brokers:        brokers,
		logger:         logger,
		writers:        make(map[string]*kafka.Writer),
		circuitBreaker: circuit.New(cbConfig),
		retryConfig:    retry.NetworkConfig(),
	}
}

// GetProducer gets or creates a Kafka producer for a topic (with connection pooling).
func (k *KafkaClient) GetProducer(topic string) *kafka.Writer {
	k.writersMu.RLock()
	if writer, exists := k.writers[topic]; exists {
		k.writersMu.RUnlock()
		return writer
	}
	k.writersMu.RUnlock()

	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	if writer, exists := k.writers[topic]; exists {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(k.brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}

	k.writers[topic] = writer
	k.logger.Info("created Kafka producer", "topic", topic)
	return writer
}

// PublishJSON publishes a JSON-encoded message to Kafka.
func (k *KafkaClient) PublishJSON(ctx context.Context, topic, key string, data []byte) error {
	return k.circuitBreaker.Execute(ctx, func() error {
		return retry.Do(ctx, k.retryConfig, func() error {
			writer := k.GetProducer(topic)
			kafkaMsg := kafka.Message{
				Key:   []byte(key),
				Value: data,
				Time:  time.Now(),
			}

			if err := writer.WriteMessages(ctx, kafkaMsg); err != nil {
				return errors.Wrap(err, errors.ErrorTypeKafka, "publish_json",
					"failed to publish JSON message to Kafka").
					WithContext("topic", topic).
					WithContext("key", key).
					WithContext("message_size", len(data))
			}

			k.logger.Debug("published JSON message", "topic", topic, "key", key, "size", len(data))
			return nil
		})
	})
}

// Close closes all producers.
func (k *KafkaClient) Close() error {
	k.writersMu.Lock()
	defer k.writersMu.Unlock()

	var lastErr error

	for topic, writer := range k.writers {
		if err := writer.Close(); err != nil {
			k.logger.Error("failed to close producer", "topic", topic, "error", err)
			lastErr = err
		}
	}

	k.writers = make(map[string]*kafka.Writer)
	return lastErr
}
