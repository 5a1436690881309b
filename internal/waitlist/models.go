package waitlist

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of a waitlist entry
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusWon         Status = "WON"
	StatusNotSelected Status = "NOT_SELECTED"
	StatusAccepted    Status = "ACCEPTED"
	StatusDeclined    Status = "DECLINED"
	StatusCancelled   Status = "CANCELLED"
)

// AdmissionResult is the outcome of a join attempt
type AdmissionResult string

const (
	Admitted          AdmissionResult = "ADMITTED"
	DuplicateRejected AdmissionResult = "DUPLICATE_REJECTED"
	WindowClosed      AdmissionResult = "WINDOW_CLOSED"
	CapacityReached   AdmissionResult = "CAPACITY_REACHED"
)

var (
	ErrEntryNotFound     = errors.New("waitlist entry not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidWindow     = errors.New("waitlist opening must not be after deadline")
	ErrInvalidCapacity   = errors.New("waitlist capacity must be positive")
)

// Entry is one user's registration record for one event
type Entry struct {
	UserID             string    `json:"user_id"`
	RegisteredAt       time.Time `json:"registered_at"`
	Status             Status    `json:"status"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
}

var validTransitions = map[Status][]Status{
	StatusPending:     {StatusWon, StatusNotSelected, StatusCancelled},
	StatusWon:         {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusNotSelected: {},
	StatusAccepted:    {},
	StatusDeclined:    {},
	StatusCancelled:   {},
}

// IsValid checks if the status is a known value
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo checks if the status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true when no further transition is possible
func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

// Predecessors returns every status that may transition into target
func Predecessors(target Status) []Status {
	var from []Status
	for s, targets := range validTransitions {
		for _, t := range targets {
			if t == target {
				from = append(from, s)
			}
		}
	}
	return from
}

// ConsumesCapacity reports whether an entry in this status holds one of the event's spots
func (s Status) ConsumesCapacity() bool {
	return s == StatusWon || s == StatusAccepted
}

// OK reports whether the join attempt added a new entry
func (r AdmissionResult) OK() bool {
	return r == Admitted
}
