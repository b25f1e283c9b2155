// Package kafka owns the broker connections of the metering core: the
// usage-event reader and the key-sync writer.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/veloapi/metering/internal/consumer"
	"github.com/veloapi/metering/internal/domain"
)

// Config describes the broker connection.
type Config struct {
	Brokers       []string
	UsageTopic    string
	KeySyncTopic  string
	ConsumerGroup string
	DialTimeout   time.Duration
}

// Broker is an explicit handle on the Kafka resources. Construction verifies
// connectivity; Close releases both directions.
type Broker struct {
	reader *kafka.Reader
	writer *kafka.Writer
	logger zerolog.Logger
}

// New dials the cluster, verifying at least one broker is reachable, and
// builds the usage-event reader and key-sync writer. Transient dial failures
// are retried with exponential backoff.
func New(cfg Config, logger zerolog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}

	if err := verifyConnectivity(cfg); err != nil {
		return nil, fmt.Errorf("kafka: connectivity check failed: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.UsageTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: 0, // explicit commits only
	})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.KeySyncTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return &Broker{reader: reader, writer: writer, logger: logger}, nil
}

func verifyConnectivity(cfg Config) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = cfg.DialTimeout

	return backoff.Retry(func() error {
		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			return err
		}

		return conn.Close()
	}, b)
}

// Fetch blocks until the next usage message arrives.
func (b *Broker) Fetch(ctx context.Context) (consumer.Message, error) {
	msg, err := b.reader.FetchMessage(ctx)
	if err != nil {
		return consumer.Message{}, err
	}

	return consumer.Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}, nil
}

// Commit acknowledges a fetched message. kafka-go tracks the partition
// internally, so the offset travels back on a reconstructed message.
func (b *Broker) Commit(ctx context.Context, msg consumer.Message) error {
	return b.reader.CommitMessages(ctx, kafka.Message{
		Topic:     b.reader.Config().Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	})
}

// PublishKeySync writes a key-sync event to the sync topic, keyed by the key
// value so per-key ordering holds.
func (b *Broker) PublishKeySync(ctx context.Context, event *domain.KeySyncEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.KeyValue),
		Value: payload,
	})
}

// Close releases reader and writer. Call only after the consumer has drained.
func (b *Broker) Close() error {
	readerErr := b.reader.Close()
	writerErr := b.writer.Close()

	if readerErr != nil {
		return readerErr
	}

	return writerErr
}
