package events

import "errors"

var (
	// ErrNotFound is returned when the event does not exist.
	ErrNotFound = errors.New("event not found")

	// ErrStorage wraps infrastructure failures from the backing store.
	ErrStorage = errors.New("event storage failure")

	// ErrConflict is returned when a write no longer matches the stored state
	// (duplicate entry, entry moved on, stale batch). Nothing is written.
	ErrConflict = errors.New("waitlist state conflict")

	// ErrLockTimeout is returned when the per-event lock could not be acquired in time.
	ErrLockTimeout = errors.New("could not acquire event lock")

	// ErrInvalidEvent is returned for malformed event definitions.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidArgument is returned for caller mistakes such as an empty user id.
	ErrInvalidArgument = errors.New("invalid argument")
)
