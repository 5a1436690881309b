package events

import (
	"time"

	"eventdraw/internal/waitlist"
)

// Event is the aggregate the lottery reads and writes through the Store.
type Event struct {
	ID        string
	Name      string
	Capacity  int
	Attendees []string
	Waitlist  *waitlist.Waitlist
	Version   int64
	CreatedBy string
	CreatedAt time.Time
}

// IsActive is true while the waitlist window is open. It is always derived, never stored.
func (e *Event) IsActive(now time.Time) bool {
	return e.Waitlist != nil && e.Waitlist.IsOpen(now)
}

// RemainingCapacity is total capacity minus entrants currently Won or Accepted.
func (e *Event) RemainingCapacity() int {
	used := 0
	if e.Waitlist != nil {
		used = e.Waitlist.CapacityUsed()
	}
	if remaining := e.Capacity - used; remaining > 0 {
		return remaining
	}
	return 0
}

// Clone returns a deep copy so store implementations never hand out shared state.
func (e *Event) Clone() *Event {
	c := *e
	c.Attendees = append([]string(nil), e.Attendees...)
	if e.Waitlist != nil {
		c.Waitlist = e.Waitlist.Clone()
	}
	return &c
}

// StatusUpdate is one element of an atomic status batch.
type StatusUpdate struct {
	UserID string
	Status waitlist.Status
	Reason string
}

// Summary aggregates the waitlist counters of one event.
type Summary struct {
	EventID           string                  `json:"event_id"`
	Capacity          int                     `json:"capacity"`
	RemainingCapacity int                     `json:"remaining_capacity"`
	WaitlistCapacity  *int                    `json:"waitlist_capacity,omitempty"`
	TotalEntries      int                     `json:"total_entries"`
	ByStatus          map[waitlist.Status]int `json:"by_status"`
	IsActive          bool                    `json:"is_active"`
	Opening           time.Time               `json:"opening"`
	Deadline          time.Time               `json:"deadline"`
}

// Summarize computes the summary of e at now.
func Summarize(e *Event, now time.Time) *Summary {
	s := &Summary{
		EventID:           e.ID,
		Capacity:          e.Capacity,
		RemainingCapacity: e.RemainingCapacity(),
		ByStatus:          make(map[waitlist.Status]int),
		IsActive:          e.IsActive(now),
	}
	if e.Waitlist == nil {
		return s
	}
	s.WaitlistCapacity = e.Waitlist.Capacity
	s.Opening = e.Waitlist.Opening
	s.Deadline = e.Waitlist.Deadline
	s.TotalEntries = e.Waitlist.Len()
	for _, entry := range e.Waitlist.Entries() {
		s.ByStatus[entry.Status]++
	}
	return s
}

// Persistence models

// EventRecord is the events table row.
type EventRecord struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	Name             string    `gorm:"not null;size:255"`
	Capacity         int       `gorm:"not null;check:capacity > 0"`
	Attendees        []string  `gorm:"type:jsonb;serializer:json"`
	Opening          time.Time `gorm:"not null"`
	Deadline         time.Time `gorm:"not null"`
	WaitlistCapacity *int
	Version          int64     `gorm:"not null;default:0"`
	CreatedBy        string    `gorm:"size:255"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (EventRecord) TableName() string { return "events" }

// WaitlistEntryRecord is the waitlist_entries table row.
type WaitlistEntryRecord struct {
	ID                 uint64          `gorm:"primaryKey;autoIncrement"`
	EventID            string          `gorm:"type:uuid;not null;uniqueIndex:idx_waitlist_event_user;index"`
	UserID             string          `gorm:"not null;size:255;uniqueIndex:idx_waitlist_event_user"`
	Status             waitlist.Status `gorm:"type:varchar(20);not null;index"`
	CancellationReason string          `gorm:"type:text"`
	RegisteredAt       time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime"`
}

func (WaitlistEntryRecord) TableName() string { return "waitlist_entries" }
