package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrBlockNotFound       = errors.New("availability block not found")
	ErrSettingsNotFound    = errors.New("scheduling settings not found")
	// ErrOverlapConstraint is returned when the store refuses a row that
	// overlaps another active appointment of the same therapist.
	ErrOverlapConstraint = errors.New("appointment overlaps an existing appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// Appointments
	ListAppointments(ctx context.Context, f Filter) ([]schedule.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error)
	// CreateAppointments stores the whole batch or nothing.
	CreateAppointments(ctx context.Context, batch []schedule.Appointment) error
	UpdateAppointmentTimes(ctx context.Context, id, therapistID uuid.UUID, start, end time.Time) (*schedule.Appointment, error)
	// UpdateAppointmentStatus only applies while the current status is from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to schedule.Status) (*schedule.Appointment, error)
	UpdateAppointmentBilling(ctx context.Context, id uuid.UUID, value int64, paid bool) (*schedule.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	DeleteSeriesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int64, error)

	// Availability blocks
	ListBlocks(ctx context.Context, f Filter) ([]schedule.AvailabilityBlock, error)
	CreateBlock(ctx context.Context, b schedule.AvailabilityBlock) (*schedule.AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, id uuid.UUID) error

	// Settings
	GetSettings(ctx context.Context) (*schedule.Settings, error)
	SaveSettings(ctx context.Context, s schedule.Settings) error

	// No-show worker
	FindOverdueScheduled(ctx context.Context, endedBefore time.Time) ([]schedule.Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
