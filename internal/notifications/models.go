package notifications

import (
	"encoding/json"
	"time"

	"eventdraw/internal/lottery"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusQueued  NotificationStatus = "QUEUED"
	NotificationStatusSending NotificationStatus = "SENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// OutcomeNotification is the message carried on the notification topic
type OutcomeNotification struct {
	ID      uuid.UUID           `json:"id"`
	UserID  string              `json:"user_id"`
	EventID string              `json:"event_id"`
	Kind    lottery.MessageKind `json:"kind"`
	Subject string              `json:"subject"`
	Text    string              `json:"text"`

	Status     NotificationStatus `json:"status"`
	RetryCount int                `json:"retry_count"`
	MaxRetries int                `json:"max_retries"`
	LastError  *string            `json:"last_error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	SentAt     *time.Time         `json:"sent_at,omitempty"`
}

// NewOutcomeNotification wraps an engine message for transport
func NewOutcomeNotification(n lottery.Notification) *OutcomeNotification {
	now := time.Now().UTC()
	return &OutcomeNotification{
		ID:         uuid.New(),
		UserID:     n.UserID,
		EventID:    n.EventID,
		Kind:       n.Kind,
		Subject:    SubjectFor(n.Kind),
		Text:       n.Text,
		Status:     NotificationStatusPending,
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// SubjectFor returns the subject line for a message kind
func SubjectFor(kind lottery.MessageKind) string {
	switch kind {
	case lottery.KindSelected:
		return "You have been selected"
	case lottery.KindReplacement:
		return "A replacement spot is yours"
	case lottery.KindNotSelected:
		return "Lottery results"
	default:
		return "Event update"
	}
}

// GetPartitionKey keeps all messages for one entrant on one partition, in order
func (n *OutcomeNotification) GetPartitionKey() string {
	return n.UserID
}

func (n *OutcomeNotification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

func (n *OutcomeNotification) ShouldRetry() bool {
	return n.RetryCount < n.MaxRetries && n.Status == NotificationStatusFailed
}

func (n *OutcomeNotification) MarkSent() {
	now := time.Now().UTC()
	n.Status = NotificationStatusSent
	n.SentAt = &now
	n.UpdatedAt = now
}

func (n *OutcomeNotification) MarkFailed(err error) {
	n.Status = NotificationStatusFailed
	n.UpdatedAt = time.Now().UTC()
	msg := err.Error()
	n.LastError = &msg
}
