package events

import (
	"context"
	"fmt"
	"sync"

	"eventdraw/internal/waitlist"
)

// MemoryStore keeps events in process memory. Every method holds one mutex for its
// whole read-validate-write, so each call is atomic with respect to the others.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]*Event
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("%w: event %s already exists", ErrConflict, event.ID)
	}
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return event.Clone(), nil
}

func (s *MemoryStore) AddEntry(ctx context.Context, eventID string, entry waitlist.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	if event.Waitlist.IsUserOnWaitlist(entry.UserID) {
		return fmt.Errorf("%w: user %s already on waitlist", ErrConflict, entry.UserID)
	}
	if c := event.Waitlist.Capacity; c != nil && event.Waitlist.Len() >= *c {
		return fmt.Errorf("%w: waitlist is full", ErrConflict)
	}
	entries := append(event.Waitlist.Entries(), entry)
	w := event.Waitlist
	restored, err := waitlist.Restore(w.EventID, w.Opening, w.Deadline, w.Capacity, entries)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	event.Waitlist = restored
	event.Version++
	return nil
}

func (s *MemoryStore) RemoveEntry(ctx context.Context, eventID, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return false, ErrNotFound
	}
	removed := event.Waitlist.Leave(userID)
	if removed {
		event.Version++
	}
	return removed, nil
}

func (s *MemoryStore) UpdateEntryStatuses(ctx context.Context, eventID string, updates []StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}

	// Apply to a copy and swap only when the whole batch succeeded.
	staged := event.Waitlist.Clone()
	claims := false
	for _, u := range updates {
		if err := staged.SetStatus(u.UserID, u.Status, u.Reason); err != nil {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		claims = claims || u.Status.ConsumesCapacity()
	}
	if used := staged.CapacityUsed(); claims && used > event.Capacity {
		return fmt.Errorf("%w: %d spots taken, capacity is %d", ErrConflict, used, event.Capacity)
	}
	event.Waitlist = staged
	event.Version++
	return nil
}
