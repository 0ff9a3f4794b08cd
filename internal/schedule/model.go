package schedule

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	TypeEvaluation   AppointmentType = "evaluation"
	TypeSession      AppointmentType = "session"
	TypeReturn       AppointmentType = "return"
	TypePilates      AppointmentType = "pilates"
	TypeTeleconsulta AppointmentType = "teleconsulta"
)

var validTypes = map[AppointmentType]bool{
	TypeEvaluation: true, TypeSession: true, TypeReturn: true,
	TypePilates: true, TypeTeleconsulta: true,
}

func (t AppointmentType) Valid() bool { return validTypes[t] }

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

var validStatuses = map[Status]bool{
	StatusScheduled: true, StatusCompleted: true, StatusCanceled: true, StatusNoShow: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Occupies reports whether an appointment in this status still holds the therapist's time.
func (s Status) Occupies() bool { return s != StatusCanceled }

type Frequency string

const FrequencyWeekly Frequency = "weekly"

// RecurrenceRule describes a weekly series. Until is an inclusive calendar date.
type RecurrenceRule struct {
	Frequency Frequency      `json:"frequency"`
	Days      []time.Weekday `json:"days"`
	Until     time.Time      `json:"until"`
}

// Recurring is false for a nil rule or one with no days.
func (r *RecurrenceRule) Recurring() bool {
	return r != nil && len(r.Days) > 0
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	PatientName string
	TherapistID uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Type        AppointmentType
	Status      Status
	SeriesID    *uuid.UUID
	Recurrence  *RecurrenceRule
	Value       int64 // cents
	Paid        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (a Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

func (a Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// AvailabilityBlock is a window in which a therapist cannot be booked.
type AvailabilityBlock struct {
	ID          uuid.UUID
	TherapistID uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Title       string
}

func (b AvailabilityBlock) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}
