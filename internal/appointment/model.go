package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// State is a step of a booking attempt.
type State string

const (
	StateDraft     State = "draft"
	StateExpanded  State = "expanded"
	StateValidated State = "validated"
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
)

// BookRequest is a draft appointment plus an optional weekly rule.
// Recurring marks the draft as a series; a recurring draft without
// weekdays is rejected instead of silently booked once.
type BookRequest struct {
	Appointment schedule.Appointment
	Recurring   bool
	Rule        *schedule.RecurrenceRule
}

// Booking is the outcome of Book. A rejected booking carries the engine
// error that stopped it; nothing of it was stored.
type Booking struct {
	State     State
	Instances []schedule.Appointment
	Reason    error
}

func (b *Booking) Rejected() bool {
	return b.State == StateRejected
}

func (b *Booking) reject(reason error) *Booking {
	b.State = StateRejected
	b.Reason = reason
	return b
}

// MoveRequest relocates an appointment. StartTime wins when set; otherwise
// the start is snapped from a drop position inside the column of Day.
type MoveRequest struct {
	ID              uuid.UUID
	StartTime       *time.Time
	Day             time.Time
	OffsetPx        float64
	PixelsPerMinute float64
	// TherapistID moves the appointment to another column; uuid.Nil keeps it.
	TherapistID uuid.UUID
}

// Filter narrows appointment and block listings. Zero fields do not filter.
// From/To select rows overlapping [From, To).
type Filter struct {
	TherapistID uuid.UUID
	From        time.Time
	To          time.Time
}
