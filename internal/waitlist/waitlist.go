// Package waitlist holds the admission state machine for a single event's waitlist.
// It is pure domain code: no storage, no clocks of its own, no locking. Callers that
// share a Waitlist between goroutines must serialise access themselves.
package waitlist

import (
	"fmt"
	"time"
)

// Waitlist owns the entries of one event together with its registration window
// and optional size cap.
type Waitlist struct {
	EventID  string
	Opening  time.Time
	Deadline time.Time
	// Capacity caps the number of entries ever held at once. Nil means uncapped.
	Capacity *int

	entries map[string]*Entry
	order   []string
}

// New creates an empty waitlist. The window must satisfy opening <= deadline and a
// non-nil capacity must be positive.
func New(eventID string, opening, deadline time.Time, capacity *int) (*Waitlist, error) {
	if opening.After(deadline) {
		return nil, ErrInvalidWindow
	}
	if capacity != nil && *capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Waitlist{
		EventID:  eventID,
		Opening:  opening,
		Deadline: deadline,
		Capacity: capacity,
		entries:  make(map[string]*Entry),
	}, nil
}

// Restore rebuilds a waitlist from persisted entries, preserving their order.
// Duplicate user ids are rejected since the store is expected to enforce uniqueness.
func Restore(eventID string, opening, deadline time.Time, capacity *int, entries []Entry) (*Waitlist, error) {
	w, err := New(eventID, opening, deadline, capacity)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, dup := w.entries[e.UserID]; dup {
			return nil, fmt.Errorf("duplicate entry for user %s", e.UserID)
		}
		entry := e
		w.entries[e.UserID] = &entry
		w.order = append(w.order, e.UserID)
	}
	return w, nil
}

// IsOpen reports whether now lies within [Opening, Deadline].
func (w *Waitlist) IsOpen(now time.Time) bool {
	return !now.Before(w.Opening) && !now.After(w.Deadline)
}

// Admit checks whether userID could join at now without mutating the waitlist.
func (w *Waitlist) Admit(userID string, now time.Time) AdmissionResult {
	if _, exists := w.entries[userID]; exists {
		return DuplicateRejected
	}
	if !w.IsOpen(now) {
		return WindowClosed
	}
	if w.Capacity != nil && len(w.entries) >= *w.Capacity {
		return CapacityReached
	}
	return Admitted
}

// Join inserts a Pending entry for userID when admission succeeds.
func (w *Waitlist) Join(userID string, now time.Time) AdmissionResult {
	result := w.Admit(userID, now)
	if !result.OK() {
		return result
	}
	w.entries[userID] = &Entry{
		UserID:       userID,
		RegisteredAt: now,
		Status:       StatusPending,
	}
	w.order = append(w.order, userID)
	return Admitted
}

// Leave removes the entry entirely. It returns false when the user was absent.
func (w *Waitlist) Leave(userID string) bool {
	if _, ok := w.entries[userID]; !ok {
		return false
	}
	delete(w.entries, userID)
	for i, id := range w.order {
		if id == userID {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

// SetStatus moves an entry to status. The reason is kept only for Cancelled.
func (w *Waitlist) SetStatus(userID string, status Status, reason string) error {
	entry, ok := w.entries[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, userID)
	}
	if !entry.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.Status, status)
	}
	entry.Status = status
	if status == StatusCancelled {
		entry.CancellationReason = reason
	} else {
		entry.CancellationReason = ""
	}
	return nil
}

// IsUserOnWaitlist reports whether userID has an entry in any status.
func (w *Waitlist) IsUserOnWaitlist(userID string) bool {
	_, ok := w.entries[userID]
	return ok
}

// Entry returns a copy of the entry for userID.
func (w *Waitlist) Entry(userID string) (Entry, bool) {
	e, ok := w.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// CountByStatus counts entries currently in status.
func (w *Waitlist) CountByStatus(status Status) int {
	n := 0
	for _, e := range w.entries {
		if e.Status == status {
			n++
		}
	}
	return n
}

// CapacityUsed counts entries that hold an event spot (Won or Accepted).
func (w *Waitlist) CapacityUsed() int {
	n := 0
	for _, e := range w.entries {
		if e.Status.ConsumesCapacity() {
			n++
		}
	}
	return n
}

// Len returns the number of entries.
func (w *Waitlist) Len() int {
	return len(w.entries)
}

// Entries returns copies of all entries in join order.
func (w *Waitlist) Entries() []Entry {
	out := make([]Entry, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, *w.entries[id])
	}
	return out
}

// Filter returns copies of the entries in status, in join order. An empty status
// returns everything.
func (w *Waitlist) Filter(status Status) []Entry {
	if status == "" {
		return w.Entries()
	}
	var out []Entry
	for _, id := range w.order {
		if e := w.entries[id]; e.Status == status {
			out = append(out, *e)
		}
	}
	return out
}

// Pending returns the entries still eligible for a draw.
func (w *Waitlist) Pending() []Entry {
	return w.Filter(StatusPending)
}

// Clone returns a deep copy that shares no state with w.
func (w *Waitlist) Clone() *Waitlist {
	c := &Waitlist{
		EventID:  w.EventID,
		Opening:  w.Opening,
		Deadline: w.Deadline,
		entries:  make(map[string]*Entry, len(w.entries)),
		order:    append([]string(nil), w.order...),
	}
	if w.Capacity != nil {
		capacity := *w.Capacity
		c.Capacity = &capacity
	}
	for id, e := range w.entries {
		entry := *e
		c.entries[id] = &entry
	}
	return c
}
