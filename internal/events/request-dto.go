package events

import "time"

// CreateEventRequest defines a new event and its waitlist window
type CreateEventRequest struct {
	Name             string    `json:"name" validate:"required,min=2,max=255"`
	Capacity         int       `json:"capacity" validate:"required,gt=0"`
	Opening          time.Time `json:"opening" validate:"required"`
	Deadline         time.Time `json:"deadline" validate:"required,gtefield=Opening"`
	WaitlistCapacity *int      `json:"waitlist_capacity,omitempty" validate:"omitempty,gt=0"`
	Attendees        []string  `json:"attendees,omitempty" validate:"omitempty,dive,required"`
}

// RespondRequest carries a winner's answer to the invitation
type RespondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// CancelEntryRequest carries the organizer's reason
type CancelEntryRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListEntriesQuery filters the entry listing
type ListEntriesQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=PENDING WON NOT_SELECTED ACCEPTED DECLINED CANCELLED"`
}
