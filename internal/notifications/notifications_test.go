package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"eventdraw/internal/lottery"
	"eventdraw/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	. "github.com/smartystreets/goconvey/convey"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []*OutcomeNotification
}

func (s *flakySender) Send(ctx context.Context, n *OutcomeNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func sampleNotification() lottery.Notification {
	return lottery.Notification{
		UserID:  "u1",
		EventID: "ev-1",
		Kind:    lottery.KindSelected,
		Text:    lottery.MessageText(lottery.KindSelected, "Spring Gala"),
	}
}

func testProducerConfig() *KafkaProducerConfig {
	cfg := DefaultKafkaProducerConfig()
	cfg.NotificationTopic = "test-notifications"
	return cfg
}

func TestOutcomeNotification(t *testing.T) {
	Convey("Given an engine message", t, func() {
		n := NewOutcomeNotification(sampleNotification())

		Convey("It is wrapped as a pending notification keyed by user", func() {
			So(n.Status, ShouldEqual, NotificationStatusPending)
			So(n.Subject, ShouldEqual, "You have been selected")
			So(n.GetPartitionKey(), ShouldEqual, "u1")
			So(n.ID.String(), ShouldNotBeEmpty)
		})

		Convey("Failure and success are recorded", func() {
			n.MarkFailed(errors.New("boom"))
			So(n.Status, ShouldEqual, NotificationStatusFailed)
			So(*n.LastError, ShouldEqual, "boom")
			So(n.ShouldRetry(), ShouldBeTrue)

			n.MarkSent()
			So(n.Status, ShouldEqual, NotificationStatusSent)
			So(n.SentAt, ShouldNotBeNil)
			So(n.ShouldRetry(), ShouldBeFalse)
		})

		Convey("Each kind has its own subject", func() {
			So(SubjectFor(lottery.KindReplacement), ShouldNotEqual, SubjectFor(lottery.KindNotSelected))
		})
	})
}

func TestKafkaDispatcher(t *testing.T) {
	Convey("Given a dispatcher over a mock producer", t, func() {
		mock := mocks.NewSyncProducer(t, nil)
		producer := NewKafkaNotificationProducerWithClient(mock, testProducerConfig(), logger.Discard())
		dispatcher := NewKafkaDispatcher(producer)
		Reset(func() { _ = producer.Close() })

		Convey("A message is published as JSON", func() {
			var published OutcomeNotification
			mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
				return json.Unmarshal(val, &published)
			})

			err := dispatcher.Notify(context.Background(), sampleNotification())
			So(err, ShouldBeNil)
			So(published.UserID, ShouldEqual, "u1")
			So(published.Kind, ShouldEqual, lottery.KindSelected)
			So(published.Status, ShouldEqual, NotificationStatusQueued)
		})

		Convey("A broker failure is returned to the caller", func() {
			mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

			err := dispatcher.Notify(context.Background(), sampleNotification())
			So(errors.Is(err, sarama.ErrOutOfBrokers), ShouldBeTrue)
		})

		Convey("A cancelled context is rejected before sending", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := dispatcher.Notify(ctx, sampleNotification())
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestConsumerGroupHandler(t *testing.T) {
	Convey("Given a handler with a flaky sender", t, func() {
		payload, err := NewOutcomeNotification(sampleNotification()).ToJSON()
		So(err, ShouldBeNil)

		Convey("Transient failures are retried until delivery", func() {
			sender := &flakySender{failures: 2}
			h := NewConsumerGroupHandler(sender, 3, time.Millisecond, logger.Discard())

			So(h.HandleMessage(context.Background(), payload), ShouldBeNil)
			So(sender.calls, ShouldEqual, 3)
			So(sender.sent, ShouldHaveLength, 1)
			So(sender.sent[0].RetryCount, ShouldEqual, 2)
		})

		Convey("Delivery gives up after the retry budget", func() {
			sender := &flakySender{failures: 10}
			h := NewConsumerGroupHandler(sender, 2, time.Millisecond, logger.Discard())

			err := h.HandleMessage(context.Background(), payload)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "smtp unavailable")
			So(sender.calls, ShouldEqual, 3)
		})

		Convey("A handler without retries sends once", func() {
			sender := &flakySender{failures: 10}
			h := NewConsumerGroupHandler(sender, 0, time.Millisecond, logger.Discard())

			err := h.HandleMessage(context.Background(), payload)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "giving up after 1 attempts")
			So(sender.calls, ShouldEqual, 1)
		})

		Convey("A record asking for fewer retries gets fewer", func() {
			n := NewOutcomeNotification(sampleNotification())
			n.MaxRetries = 1
			short, err := n.ToJSON()
			So(err, ShouldBeNil)
			sender := &flakySender{failures: 10}
			h := NewConsumerGroupHandler(sender, 5, time.Millisecond, logger.Discard())

			So(h.HandleMessage(context.Background(), short), ShouldNotBeNil)
			So(sender.calls, ShouldEqual, 2)
		})

		Convey("Malformed payloads are rejected without sending", func() {
			sender := &flakySender{}
			h := NewConsumerGroupHandler(sender, 1, time.Millisecond, logger.Discard())

			So(h.HandleMessage(context.Background(), []byte("{not json")), ShouldNotBeNil)
			So(sender.calls, ShouldEqual, 0)
		})

		Convey("Cancellation stops the backoff wait", func() {
			sender := &flakySender{failures: 10}
			h := NewConsumerGroupHandler(sender, 5, time.Hour, logger.Discard())
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()

			err := h.HandleMessage(ctx, payload)
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			So(sender.calls, ShouldEqual, 1)
		})
	})
}

func TestLogDispatcher(t *testing.T) {
	Convey("The log dispatcher accepts messages while the context is live", t, func() {
		d := NewLogDispatcher(logger.Discard())
		So(d.Notify(context.Background(), sampleNotification()), ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		So(d.Notify(ctx, sampleNotification()), ShouldNotBeNil)
	})
}
