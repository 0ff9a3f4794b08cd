package schedule

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("scheduling conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNotFound         = errors.New("not found")
)

const clockLayout = "2006-01-02 15:04"

// ValidationError reports a malformed draft or settings value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError carries the entity a candidate collided with.
type ConflictError struct {
	Conflict Conflict
}

func (e *ConflictError) Error() string {
	switch c := e.Conflict.(type) {
	case *AppointmentConflict:
		who := c.Existing.PatientName
		if who == "" {
			who = c.Existing.PatientID.String()
		}
		return fmt.Sprintf("overlaps appointment of %s at %s-%s",
			who, c.Existing.StartTime.Format(clockLayout), c.Existing.EndTime.Format("15:04"))
	case *BlockConflict:
		return fmt.Sprintf("overlaps %q at %s-%s",
			c.Block.Title, c.Block.StartTime.Format(clockLayout), c.Block.EndTime.Format("15:04"))
	default:
		return ErrConflict.Error()
	}
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type CapacityLimit string

const (
	// LimitBandClosed means no band covers the requested time of day, or its limit is zero.
	LimitBandClosed  CapacityLimit = "band_closed"
	LimitPatients    CapacityLimit = "patients"
	LimitEvaluations CapacityLimit = "evaluations"
)

type CapacityExceededError struct {
	Limit     CapacityLimit
	Instance  Appointment
	Occupancy Occupancy
}

func (e *CapacityExceededError) Error() string {
	at := e.Instance.StartTime.Format(clockLayout)
	switch e.Limit {
	case LimitBandClosed:
		return fmt.Sprintf("no bookable band at %s", at)
	case LimitEvaluations:
		return fmt.Sprintf("evaluation limit reached at %s (%d/%d)",
			at, e.Occupancy.EvaluationCount, e.Occupancy.MaxEvaluations)
	default:
		return fmt.Sprintf("patient limit reached at %s (%d/%d)",
			at, e.Occupancy.PatientCount, e.Occupancy.Limit)
	}
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
