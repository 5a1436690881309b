package events

import (
	"time"

	"eventdraw/internal/waitlist"
)

// EventResponse is the public view of an event
type EventResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Capacity          int       `json:"capacity"`
	RemainingCapacity int       `json:"remaining_capacity"`
	Opening           time.Time `json:"opening"`
	Deadline          time.Time `json:"deadline"`
	WaitlistCapacity  *int      `json:"waitlist_capacity,omitempty"`
	WaitlistSize      int       `json:"waitlist_size"`
	IsActive          bool      `json:"is_active"`
	AttendeeCount     int       `json:"attendee_count"`
	CreatedBy         string    `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// JoinResponse reports the outcome of a join attempt
type JoinResponse struct {
	EventID string                   `json:"event_id"`
	UserID  string                   `json:"user_id"`
	Result  waitlist.AdmissionResult `json:"result"`
	Joined  bool                     `json:"joined"`
}

// EntryListResponse is the organizer's view of the waitlist
type EntryListResponse struct {
	EventID string           `json:"event_id"`
	Status  string           `json:"status,omitempty"`
	Count   int              `json:"count"`
	Entries []waitlist.Entry `json:"entries"`
}

func toEventResponse(e *Event, now time.Time) *EventResponse {
	resp := &EventResponse{
		ID:                e.ID,
		Name:              e.Name,
		Capacity:          e.Capacity,
		RemainingCapacity: e.RemainingCapacity(),
		IsActive:          e.IsActive(now),
		AttendeeCount:     len(e.Attendees),
		CreatedBy:         e.CreatedBy,
		CreatedAt:         e.CreatedAt,
	}
	if e.Waitlist != nil {
		resp.Opening = e.Waitlist.Opening
		resp.Deadline = e.Waitlist.Deadline
		resp.WaitlistCapacity = e.Waitlist.Capacity
		resp.WaitlistSize = e.Waitlist.Len()
	}
	return resp
}
