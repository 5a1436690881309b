package lottery

import (
	"eventdraw/internal/events"
)

// ErrInvalidArgument is returned for a missing event id or a non-positive count.
var ErrInvalidArgument = events.ErrInvalidArgument

// Info notes explaining why a round selected nobody
const (
	InfoNoCapacity = "no capacity left"
	InfoNoPending  = "no pending entrants"
)

// SelectionRequest describes one lottery round
type SelectionRequest struct {
	EventID        string
	RequestedCount int
	IsReplacement  bool
}

// NotificationFailure names a recipient whose outcome message was not delivered
type NotificationFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// SelectionResult is the outcome of one round
type SelectionResult struct {
	EventID              string                `json:"event_id"`
	Winners              []string              `json:"winners"`
	WinnersAdded         int                   `json:"winners_added"`
	RemainingCapacity    int                   `json:"remaining_capacity"`
	Info                 string                `json:"info,omitempty"`
	NotificationFailures []NotificationFailure `json:"notification_failures,omitempty"`
}

// CloseResult is the outcome of closing a draw
type CloseResult struct {
	EventID              string                `json:"event_id"`
	NotSelected          []string              `json:"not_selected"`
	NotificationFailures []NotificationFailure `json:"notification_failures,omitempty"`
}

func (r SelectionRequest) kind() MessageKind {
	if r.IsReplacement {
		return KindReplacement
	}
	return KindSelected
}
