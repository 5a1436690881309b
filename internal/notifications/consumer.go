package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"eventdraw/pkg/logger"

	"github.com/IBM/sarama"
)

// Sender performs the final delivery of a message to the entrant
type Sender interface {
	Send(ctx context.Context, notification *OutcomeNotification) error
}

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	SessionTimeoutMs     int
	HeartbeatMs          int
	MaxProcessingTime    time.Duration
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "eventdraw-notification-workers",
		Topics:               []string{"lottery-notifications"},
		SessionTimeoutMs:     30000,
		HeartbeatMs:          3000,
		MaxProcessingTime:    time.Minute,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

// KafkaNotificationConsumer runs a pool of consumer-group workers feeding a Sender
type KafkaNotificationConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	handler       *ConsumerGroupHandler
	log           *logger.Logger
	wg            sync.WaitGroup
}

func NewKafkaNotificationConsumer(config *ConsumerConfig, sender Sender, log *logger.Logger) (*KafkaNotificationConsumer, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	sc := sarama.NewConfig()
	sc.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	sc.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	sc.Consumer.MaxProcessingTime = config.MaxProcessingTime
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second
	if config.OffsetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaNotificationConsumer{
		consumerGroup: group,
		config:        config,
		handler:       NewConsumerGroupHandler(sender, config.MaxRetries, config.RetryBackoffDuration, log),
		log:           log,
	}, nil
}

// Start launches numWorkers consume loops that run until ctx is done.
func (knc *KafkaNotificationConsumer) Start(ctx context.Context, numWorkers int) {
	go func() {
		for err := range knc.consumerGroup.Errors() {
			knc.log.ErrorWithContext(ctx, "consumer group error", err, nil)
		}
	}()

	for i := 0; i < numWorkers; i++ {
		knc.wg.Add(1)
		go func(workerID int) {
			defer knc.wg.Done()
			for ctx.Err() == nil {
				if err := knc.consumerGroup.Consume(ctx, knc.config.Topics, knc.handler); err != nil {
					knc.log.ErrorWithContext(ctx, "consume failed", err, map[string]interface{}{"worker": workerID})
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
					}
				}
			}
		}(i)
	}
	knc.log.Info("notification consumers started", "workers", numWorkers, "topics", knc.config.Topics)
}

// Stop closes the group and waits for the workers. Cancel the Start context first.
func (knc *KafkaNotificationConsumer) Stop() error {
	err := knc.consumerGroup.Close()
	knc.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

// ConsumerGroupHandler decodes messages and hands them to the Sender with retries
type ConsumerGroupHandler struct {
	sender     Sender
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
}

func NewConsumerGroupHandler(sender Sender, maxRetries int, backoff time.Duration, log *logger.Logger) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{sender: sender, maxRetries: maxRetries, backoff: backoff, log: log}
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.HandleMessage(session.Context(), message.Value); err != nil {
				h.log.ErrorWithContext(session.Context(), "notification delivery failed", err, map[string]interface{}{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				})
			}
			// Delivery is best-effort; a poison message must not stall the partition.
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleMessage decodes one record and delivers it, retrying with exponential backoff.
// A record may ask for fewer retries than the handler allows, never more.
func (h *ConsumerGroupHandler) HandleMessage(ctx context.Context, value []byte) error {
	var notification OutcomeNotification
	if err := json.Unmarshal(value, &notification); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if notification.MaxRetries <= 0 || notification.MaxRetries > h.maxRetries {
		notification.MaxRetries = h.maxRetries
	}
	if err := h.executeWithRetry(ctx, &notification); err != nil {
		return err
	}
	notification.MarkSent()
	return nil
}

func (h *ConsumerGroupHandler) executeWithRetry(ctx context.Context, notification *OutcomeNotification) error {
	for {
		notification.Status = NotificationStatusSending
		err := h.sender.Send(ctx, notification)
		if err == nil {
			return nil
		}
		notification.MarkFailed(err)
		if !notification.ShouldRetry() {
			return fmt.Errorf("giving up after %d attempts: %w", notification.RetryCount+1, err)
		}

		delay := h.backoff * time.Duration(1<<notification.RetryCount)
		notification.RetryCount++
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
