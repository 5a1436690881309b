package lottery

import (
	"context"
	"fmt"
)

// MessageKind tells the transport which outcome template to render
type MessageKind string

const (
	KindSelected    MessageKind = "selected"
	KindReplacement MessageKind = "replacement"
	KindNotSelected MessageKind = "not_selected"
)

// Notification is one outcome message for one entrant
type Notification struct {
	UserID  string      `json:"user_id"`
	EventID string      `json:"event_id"`
	Kind    MessageKind `json:"kind"`
	Text    string      `json:"text"`
}

// NotificationDispatcher delivers outcome messages. Retrying is the dispatcher's
// business; the engine only records whether the hand-off succeeded.
type NotificationDispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a plain function to NotificationDispatcher
type DispatcherFunc func(ctx context.Context, n Notification) error

func (f DispatcherFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MessageText renders the default text for kind
func MessageText(kind MessageKind, eventName string) string {
	switch kind {
	case KindReplacement:
		return fmt.Sprintf("A replacement spot opened up for %s and you have been selected. Please accept or decline.", eventName)
	case KindNotSelected:
		return fmt.Sprintf("The draw for %s is complete. Unfortunately you were not selected this time.", eventName)
	default:
		return fmt.Sprintf("Congratulations! You have been selected for %s. Please accept or decline.", eventName)
	}
}
