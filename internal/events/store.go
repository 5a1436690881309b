package events

import (
	"context"

	"eventdraw/internal/waitlist"
)

// Store is the durable home of Event aggregates. Implementations return deep copies
// and must apply UpdateEntryStatuses atomically: either every update in the batch
// is written or none is. A batch that would leave more Won and Accepted entries than
// the event's capacity is rejected with ErrConflict.
type Store interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	AddEntry(ctx context.Context, eventID string, entry waitlist.Entry) error
	RemoveEntry(ctx context.Context, eventID, userID string) (bool, error)
	UpdateEntryStatuses(ctx context.Context, eventID string, updates []StatusUpdate) error
}
