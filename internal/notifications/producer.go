package notifications

import (
	"context"
	"fmt"
	"time"

	"eventdraw/pkg/logger"

	"github.com/IBM/sarama"
)

// NotificationProducer publishes outcome messages
type NotificationProducer interface {
	PublishNotification(ctx context.Context, notification *OutcomeNotification) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka notification producer
type KafkaProducerConfig struct {
	Brokers           []string
	NotificationTopic string
	RetryMax          int
	TimeoutMs         int
	RequiredAcks      sarama.RequiredAcks
	CompressionType   sarama.CompressionCodec
	IdempotentWrites  bool
	MaxMessageBytes   int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:           []string{"localhost:9092"},
		NotificationTopic: "lottery-notifications",
		RetryMax:          3,
		TimeoutMs:         10000,
		RequiredAcks:      sarama.WaitForAll,
		CompressionType:   sarama.CompressionSnappy,
		IdempotentWrites:  true,
		MaxMessageBytes:   1000000,
	}
}

// SaramaConfig builds the sarama producer settings for cfg
func (cfg *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = cfg.RequiredAcks
	sc.Producer.Compression = cfg.CompressionType
	sc.Producer.Retry.Max = cfg.RetryMax
	sc.Producer.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	sc.Producer.Idempotent = cfg.IdempotentWrites
	sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	if cfg.IdempotentWrites {
		// idempotence requires a single in-flight request
		sc.Net.MaxOpenRequests = 1
	}
	// same recipient, same partition
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc
}

// KafkaNotificationProducer handles publishing notifications to Kafka
type KafkaNotificationProducer struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
	log      *logger.Logger
}

// NewKafkaNotificationProducer connects a sync producer to the configured brokers
func NewKafkaNotificationProducer(config *KafkaProducerConfig, log *logger.Logger) (*KafkaNotificationProducer, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaNotificationProducerWithClient(producer, config, log), nil
}

// NewKafkaNotificationProducerWithClient wraps an existing sync producer
func NewKafkaNotificationProducerWithClient(producer sarama.SyncProducer, config *KafkaProducerConfig, log *logger.Logger) *KafkaNotificationProducer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &KafkaNotificationProducer{producer: producer, config: config, log: log}
}

// PublishNotification publishes a single notification to Kafka
func (knp *KafkaNotificationProducer) PublishNotification(ctx context.Context, notification *OutcomeNotification) error {
	// SendMessage cannot be interrupted, so honour cancellation up front
	if err := ctx.Err(); err != nil {
		return err
	}

	notification.Status = NotificationStatusQueued
	notification.UpdatedAt = time.Now().UTC()

	messageBytes, err := notification.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     knp.config.NotificationTopic,
		Key:       sarama.StringEncoder(notification.GetPartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   createHeaders(notification),
		Timestamp: notification.CreatedAt,
	}

	partition, offset, err := knp.producer.SendMessage(message)
	if err != nil {
		notification.MarkFailed(err)
		return fmt.Errorf("failed to send notification to Kafka: %w", err)
	}

	knp.log.DebugContext(ctx, "notification published",
		"topic", knp.config.NotificationTopic,
		"partition", partition,
		"offset", offset,
		"kind", notification.Kind,
		"user_id", notification.UserID,
	)
	return nil
}

func createHeaders(n *OutcomeNotification) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("notification_id"), Value: []byte(n.ID.String())},
		{Key: []byte("kind"), Value: []byte(n.Kind)},
		{Key: []byte("event_id"), Value: []byte(n.EventID)},
		{Key: []byte("user_id"), Value: []byte(n.UserID)},
		{Key: []byte("producer"), Value: []byte("eventdraw-lottery")},
		{Key: []byte("created_at"), Value: []byte(n.CreatedAt.Format(time.RFC3339))},
	}
}

// Close closes the Kafka producer
func (knp *KafkaNotificationProducer) Close() error {
	if knp.producer == nil {
		return nil
	}
	if err := knp.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
