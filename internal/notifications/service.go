package notifications

import (
	"context"

	"eventdraw/internal/lottery"
	"eventdraw/pkg/logger"
)

// KafkaDispatcher hands engine messages to the notification topic. Delivery and its
// retries happen in the consumer.
type KafkaDispatcher struct {
	producer NotificationProducer
}

func NewKafkaDispatcher(producer NotificationProducer) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, n lottery.Notification) error {
	return d.producer.PublishNotification(ctx, NewOutcomeNotification(n))
}

// LogDispatcher writes messages to the log. Used when no broker is configured.
type LogDispatcher struct {
	sender *LogSender
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{sender: NewLogSender(log)}
}

func (d *LogDispatcher) Notify(ctx context.Context, n lottery.Notification) error {
	notification := NewOutcomeNotification(n)
	if err := d.sender.Send(ctx, notification); err != nil {
		return err
	}
	notification.MarkSent()
	return nil
}

// LogSender is the delivery end of the pipeline. It records each message as a
// structured log line for the entrant-facing channel to pick up.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, n *OutcomeNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Notification Delivered",
		"notification_id", n.ID.String(),
		"user_id", n.UserID,
		"event_id", n.EventID,
		"kind", string(n.Kind),
		"subject", n.Subject,
		"text", n.Text,
	)
	return nil
}
