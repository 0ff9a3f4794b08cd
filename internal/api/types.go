package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

type RecurrenceRequest struct {
	Frequency string `json:"frequency"`
	Days      []int  `json:"days"`
	Until     string `json:"until"` // YYYY-MM-DD, inclusive
}

type BookAppointmentRequest struct {
	PatientID   string             `json:"patient_id"`
	TherapistID string             `json:"therapist_id"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     time.Time          `json:"end_time"`
	Type        string             `json:"type"`
	Value       int64              `json:"value"`
	Paid        bool               `json:"paid"`
	Recurring   bool               `json:"recurring"`
	Recurrence  *RecurrenceRequest `json:"recurrence,omitempty"`
}

type MoveAppointmentRequest struct {
	StartTime       *time.Time `json:"start_time,omitempty"`
	Day             string     `json:"day,omitempty"`
	OffsetPx        float64    `json:"offset_px"`
	PixelsPerMinute float64    `json:"pixels_per_minute"`
	TherapistID     string     `json:"therapist_id,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type UpdateBillingRequest struct {
	Value int64 `json:"value"`
	Paid  bool  `json:"paid"`
}

type CreateBlockRequest struct {
	TherapistID string    `json:"therapist_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Title       string    `json:"title"`
}

type AppointmentResponse struct {
	ID          uuid.UUID                `json:"id"`
	PatientID   uuid.UUID                `json:"patient_id"`
	PatientName string                   `json:"patient_name,omitempty"`
	TherapistID uuid.UUID                `json:"therapist_id"`
	StartTime   time.Time                `json:"start_time"`
	EndTime     time.Time                `json:"end_time"`
	Type        string                   `json:"type"`
	Status      string                   `json:"status"`
	SeriesID    *uuid.UUID               `json:"series_id,omitempty"`
	Recurrence  *schedule.RecurrenceRule `json:"recurrence,omitempty"`
	Value       int64                    `json:"value"`
	Paid        bool                     `json:"paid"`
}

type BookingResponse struct {
	State        string                `json:"state"`
	Appointments []AppointmentResponse `json:"appointments"`
}

type BlockResponse struct {
	ID          uuid.UUID `json:"id"`
	TherapistID uuid.UUID `json:"therapist_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Title       string    `json:"title"`
}

type DeleteSeriesResponse struct {
	Deleted int64 `json:"deleted"`
}

type ConflictResponse struct {
	Kind        string    `json:"kind"` // appointment or block
	ID          uuid.UUID `json:"id"`
	PatientName string    `json:"patient_name,omitempty"`
	Title       string    `json:"title,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Candidate   time.Time `json:"candidate_start_time"`
}

type CapacityResponse struct {
	Limit           string    `json:"limit"`
	StartTime       time.Time `json:"start_time"`
	PatientCount    int       `json:"patient_count"`
	PatientLimit    int       `json:"patient_limit"`
	EvaluationCount int       `json:"evaluation_count"`
	EvaluationLimit int       `json:"evaluation_limit"`
}

type ErrorResponse struct {
	Error    string            `json:"error"`
	Details  string            `json:"details,omitempty"`
	Conflict *ConflictResponse `json:"conflict,omitempty"`
	Capacity *CapacityResponse `json:"capacity,omitempty"`
}

func toAppointmentResponse(a schedule.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		PatientName: a.PatientName,
		TherapistID: a.TherapistID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Type:        string(a.Type),
		Status:      string(a.Status),
		SeriesID:    a.SeriesID,
		Recurrence:  a.Recurrence,
		Value:       a.Value,
		Paid:        a.Paid,
	}
}

func toAppointmentResponses(appts []schedule.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toBookingResponse(b *appointment.Booking) BookingResponse {
	return BookingResponse{
		State:        string(b.State),
		Appointments: toAppointmentResponses(b.Instances),
	}
}

func toBlockResponse(b schedule.AvailabilityBlock) BlockResponse {
	return BlockResponse{
		ID:          b.ID,
		TherapistID: b.TherapistID,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Title:       b.Title,
	}
}

func toConflictResponse(c schedule.Conflict) *ConflictResponse {
	switch c := c.(type) {
	case *schedule.AppointmentConflict:
		return &ConflictResponse{
			Kind:        "appointment",
			ID:          c.Existing.ID,
			PatientName: c.Existing.PatientName,
			StartTime:   c.Existing.StartTime,
			EndTime:     c.Existing.EndTime,
			Candidate:   c.Instance.StartTime,
		}
	case *schedule.BlockConflict:
		return &ConflictResponse{
			Kind:      "block",
			ID:        c.Block.ID,
			Title:     c.Block.Title,
			StartTime: c.Block.StartTime,
			EndTime:   c.Block.EndTime,
			Candidate: c.Instance.StartTime,
		}
	}
	return nil
}

func toCapacityResponse(e *schedule.CapacityExceededError) *CapacityResponse {
	return &CapacityResponse{
		Limit:           string(e.Limit),
		StartTime:       e.Instance.StartTime,
		PatientCount:    e.Occupancy.PatientCount,
		PatientLimit:    e.Occupancy.Limit,
		EvaluationCount: e.Occupancy.EvaluationCount,
		EvaluationLimit: e.Occupancy.MaxEvaluations,
	}
}
