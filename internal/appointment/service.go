package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentBooked  = "APPOINTMENT_BOOKED"
	EventAppointmentMoved   = "APPOINTMENT_MOVED"
	EventStatusChanged      = "APPOINTMENT_STATUS_CHANGED"
	EventBillingUpdated     = "APPOINTMENT_BILLING_UPDATED"
	EventAppointmentDeleted = "APPOINTMENT_DELETED"
	EventSeriesDeleted      = "SERIES_DELETED"
	EventAppointmentNoShow  = "APPOINTMENT_NO_SHOW"
	EventBlockCreated       = "AVAILABILITY_BLOCK_CREATED"
	EventBlockDeleted       = "AVAILABILITY_BLOCK_DELETED"
	EventSettingsSaved      = "SCHEDULING_SETTINGS_SAVED"
)

var (
	ErrScheduleBusy = errors.New("therapist schedule is being changed, please retry")
	ErrStaleStatus  = errors.New("appointment status changed concurrently, please retry")
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	cache  redisclient.SettingsCache
	cfg    config.Config
	log    zerolog.Logger
	now    func() time.Time
}

// NewService wires the booking orchestrator. cache may be nil.
func NewService(repo Repository, locker redisclient.Locker, cache redisclient.SettingsCache, cfg config.Config, log zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BookingAttempts < 1 {
		cfg.BookingAttempts = 1
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cache:  cache,
		cfg:    cfg,
		log:    log.With().Str("component", "appointment").Logger(),
		now:    time.Now,
	}
}

// isRejection reports whether err is a caller-facing scheduling outcome
// rather than an infrastructure failure.
func isRejection(err error) bool {
	return errors.Is(err, schedule.ErrValidation) ||
		errors.Is(err, schedule.ErrConflict) ||
		errors.Is(err, schedule.ErrCapacityExceeded)
}

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrBlockNotFound) {
		return &schedule.NotFoundError{Entity: entity, ID: id.String()}
	}
	return err
}

func (s *Service) local(a schedule.Appointment) schedule.Appointment {
	a.StartTime = a.StartTime.In(s.cfg.Location)
	a.EndTime = a.EndTime.In(s.cfg.Location)
	return a
}

func (s *Service) localAll(appts []schedule.Appointment) []schedule.Appointment {
	for i := range appts {
		appts[i] = s.local(appts[i])
	}
	return appts
}

func (s *Service) localBlocks(blocks []schedule.AvailabilityBlock) []schedule.AvailabilityBlock {
	for i := range blocks {
		blocks[i].StartTime = blocks[i].StartTime.In(s.cfg.Location)
		blocks[i].EndTime = blocks[i].EndTime.In(s.cfg.Location)
	}
	return blocks
}

func validateDraft(a schedule.Appointment, req BookRequest) error {
	switch {
	case a.PatientID == uuid.Nil:
		return &schedule.ValidationError{Field: "patient_id", Reason: "is required"}
	case a.TherapistID == uuid.Nil:
		return &schedule.ValidationError{Field: "therapist_id", Reason: "is required"}
	case !a.Type.Valid():
		return &schedule.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown appointment type %q", a.Type)}
	case !a.Status.Valid():
		return &schedule.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", a.Status)}
	case a.Value < 0:
		return &schedule.ValidationError{Field: "value", Reason: "must not be negative"}
	case !a.Interval().Valid():
		return &schedule.ValidationError{Field: "end_time", Reason: "must be after start_time"}
	case req.Recurring && !req.Rule.Recurring():
		return &schedule.ValidationError{Field: "recurrence.days", Reason: "required for a recurring appointment"}
	}
	return nil
}

// Book runs a draft through expansion, capacity and conflict checks and
// commits every instance or none. Scheduling rejections come back as a
// Rejected booking with a nil error; only infrastructure failures and lock
// contention return an error.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Booking, error) {
	booking := &Booking{State: StateDraft}

	draft := s.local(req.Appointment)
	if draft.Status == "" {
		draft.Status = schedule.StatusScheduled
	}
	if err := validateDraft(draft, req); err != nil {
		s.logRejection(draft, err)
		return booking.reject(err), nil
	}

	instances, err := schedule.Expand(draft, req.Rule)
	if err != nil {
		s.logRejection(draft, err)
		return booking.reject(err), nil
	}
	booking.State = StateExpanded
	booking.Instances = instances

	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	err = s.withTherapistLock(ctx, draft.TherapistID, func(lockCtx context.Context) error {
		return s.retryOnOverlap(func() error {
			if err := s.validate(lockCtx, settings, instances, uuid.Nil); err != nil {
				return err
			}
			booking.State = StateValidated

			if err := s.repo.CreateAppointments(lockCtx, instances); err != nil {
				booking.State = StateExpanded
				return err
			}
			booking.State = StateCommitted
			return nil
		})
	})
	if err != nil {
		if isRejection(err) {
			s.logRejection(draft, err)
			return booking.reject(err), nil
		}
		return nil, err
	}

	for _, inst := range instances {
		payload := map[string]any{
			"therapist_id": inst.TherapistID.String(),
			"patient_id":   inst.PatientID.String(),
			"start_time":   inst.StartTime,
			"end_time":     inst.EndTime,
			"type":         inst.Type,
		}
		if inst.SeriesID != nil {
			payload["series_id"] = inst.SeriesID.String()
		}
		s.logEvent(ctx, inst.ID, EventAppointmentBooked, payload)
	}

	s.log.Info().
		Str("therapist_id", draft.TherapistID.String()).
		Int("instances", len(instances)).
		Msg("booking committed")

	return booking, nil
}

// Move relocates an appointment to an explicit or snapped start, optionally
// to another therapist, keeping its duration.
func (s *Service) Move(ctx context.Context, req MoveRequest) (*schedule.Appointment, error) {
	current, err := s.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	start, err := s.moveTarget(*current, req)
	if err != nil {
		return nil, err
	}
	moved := schedule.Relocate(*current, start, req.TherapistID)

	settings, err := s.Settings(ctx)
	if err != nil {
		return nil, err
	}

	var updated *schedule.Appointment
	err = s.withTherapistLock(ctx, moved.TherapistID, func(lockCtx context.Context) error {
		return s.retryOnOverlap(func() error {
			if moved.Status.Occupies() {
				if err := s.validate(lockCtx, settings, []schedule.Appointment{moved}, moved.ID); err != nil {
					return err
				}
			}

			var err error
			updated, err = s.repo.UpdateAppointmentTimes(lockCtx, moved.ID, moved.TherapistID, moved.StartTime, moved.EndTime)
			return notFound(err, "appointment", moved.ID)
		})
	})
	if err != nil {
		if isRejection(err) {
			s.logRejection(moved, err)
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentMoved, map[string]any{
		"from_therapist_id": current.TherapistID.String(),
		"from_start_time":   current.StartTime,
		"therapist_id":      updated.TherapistID.String(),
		"start_time":        updated.StartTime,
		"end_time":          updated.EndTime,
	})

	result := s.local(*updated)
	return &result, nil
}

func (s *Service) moveTarget(current schedule.Appointment, req MoveRequest) (time.Time, error) {
	if req.StartTime != nil {
		return req.StartTime.In(s.cfg.Location), nil
	}

	grid := schedule.SnapGrid{
		PixelsPerMinute: req.PixelsPerMinute,
		OpeningHour:     s.cfg.OpeningHour,
		Quantum:         s.cfg.SnapQuantum,
	}
	day := req.Day
	if day.IsZero() {
		day = current.StartTime
	}
	return grid.Snap(day.In(s.cfg.Location), req.OffsetPx)
}

// UpdateStatus changes an appointment's status. Reviving a canceled
// appointment goes through the same checks as a new booking.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status schedule.Status) (*schedule.Appointment, error) {
	if !status.Valid() {
		return nil, &schedule.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}

	update := func(ctx context.Context) (*schedule.Appointment, error) {
		updated, err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, status)
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStaleStatus
		}
		return updated, err
	}

	var updated *schedule.Appointment
	if !current.Status.Occupies() && status.Occupies() {
		settings, err := s.Settings(ctx)
		if err != nil {
			return nil, err
		}
		revived := *current
		revived.Status = status

		err = s.withTherapistLock(ctx, current.TherapistID, func(lockCtx context.Context) error {
			return s.retryOnOverlap(func() error {
				if err := s.validate(lockCtx, settings, []schedule.Appointment{revived}, id); err != nil {
					return err
				}
				var err error
				updated, err = update(lockCtx)
				return err
			})
		})
		if err != nil {
			if isRejection(err) {
				s.logRejection(revived, err)
			}
			return nil, err
		}
	} else {
		updated, err = update(ctx)
		if err != nil {
			return nil, err
		}
	}

	s.logEvent(ctx, id, EventStatusChanged, map[string]any{
		"from": current.Status,
		"to":   status,
	})

	result := s.local(*updated)
	return &result, nil
}

func (s *Service) UpdateBilling(ctx context.Context, id uuid.UUID, value int64, paid bool) (*schedule.Appointment, error) {
	if value < 0 {
		return nil, &schedule.ValidationError{Field: "value", Reason: "must not be negative"}
	}

	updated, err := s.repo.UpdateAppointmentBilling(ctx, id, value, paid)
	if err != nil {
		return nil, notFound(err, "appointment", id)
	}

	s.logEvent(ctx, id, EventBillingUpdated, map[string]any{
		"value": value,
		"paid":  paid,
	})

	result := s.local(*updated)
	return &result, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, notFound(err, "appointment", id)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	result := s.local(*a)
	return &result, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]schedule.Appointment, error) {
	if !f.From.IsZero() && !f.To.IsZero() && !f.To.After(f.From) {
		return nil, &schedule.ValidationError{Field: "to", Reason: "must be after from"}
	}
	appts, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.localAll(appts), nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return notFound(err, "appointment", id)
		}
		return fmt.Errorf("delete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	return nil
}

// DeleteSeriesFrom removes the instances of a series starting on or after
// the clinic-local day of from. Earlier instances are kept.
func (s *Service) DeleteSeriesFrom(ctx context.Context, seriesID uuid.UUID, from time.Time) (int64, error) {
	local := from.In(s.cfg.Location)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)

	n, err := s.repo.DeleteSeriesFrom(ctx, seriesID, midnight)
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}
	if n == 0 {
		return 0, &schedule.NotFoundError{Entity: "series", ID: seriesID.String()}
	}

	s.logEvent(ctx, uuid.Nil, EventSeriesDeleted, map[string]any{
		"series_id": seriesID.String(),
		"from":      midnight,
		"deleted":   n,
	})
	return n, nil
}

func (s *Service) ListBlocks(ctx context.Context, f Filter) ([]schedule.AvailabilityBlock, error) {
	blocks, err := s.repo.ListBlocks(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list availability blocks: %w", err)
	}
	return s.localBlocks(blocks), nil
}

func (s *Service) CreateBlock(ctx context.Context, b schedule.AvailabilityBlock) (*schedule.AvailabilityBlock, error) {
	b.Title = strings.TrimSpace(b.Title)
	switch {
	case b.TherapistID == uuid.Nil:
		return nil, &schedule.ValidationError{Field: "therapist_id", Reason: "is required"}
	case b.Title == "":
		return nil, &schedule.ValidationError{Field: "title", Reason: "is required"}
	case !b.Interval().Valid():
		return nil, &schedule.ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.StartTime = b.StartTime.In(s.cfg.Location)
	b.EndTime = b.EndTime.In(s.cfg.Location)

	created, err := s.repo.CreateBlock(ctx, b)
	if err != nil {
		if isRejection(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create availability block: %w", err)
	}

	s.logEvent(ctx, uuid.Nil, EventBlockCreated, map[string]any{
		"block_id":     created.ID.String(),
		"therapist_id": created.TherapistID.String(),
		"start_time":   created.StartTime,
		"end_time":     created.EndTime,
		"title":        created.Title,
	})
	return created, nil
}

func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteBlock(ctx, id); err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return notFound(err, "availability block", id)
		}
		return fmt.Errorf("delete availability block: %w", err)
	}

	s.logEvent(ctx, uuid.Nil, EventBlockDeleted, map[string]any{"block_id": id.String()})
	return nil
}

// Settings returns the scheduling settings from the cache, then the store,
// then the defaults.
func (s *Service) Settings(ctx context.Context) (schedule.Settings, error) {
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("settings cache unavailable")
		} else if ok {
			return cached, nil
		}
	}

	stored, err := s.repo.GetSettings(ctx)
	var settings schedule.Settings
	switch {
	case errors.Is(err, ErrSettingsNotFound):
		settings = schedule.DefaultSettings()
	case err != nil:
		return schedule.Settings{}, fmt.Errorf("load scheduling settings: %w", err)
	default:
		settings = *stored
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, settings); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache scheduling settings")
		}
	}
	return settings, nil
}

func (s *Service) SaveSettings(ctx context.Context, settings schedule.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save scheduling settings: %w", err)
	}

	// Write through: a read racing this save must not re-cache the old value.
	if s.cache != nil {
		if err := s.cache.Set(ctx, settings); err != nil {
			s.log.Warn().Err(err).Msg("failed to cache saved scheduling settings")
			if err := s.cache.Invalidate(ctx); err != nil {
				s.log.Warn().Err(err).Msg("failed to invalidate settings cache")
			}
		}
	}

	s.logEvent(ctx, uuid.Nil, EventSettingsSaved, map[string]any{"settings": settings})
	return nil
}

// MarkNoShows is intended to be called by the worker periodically. It flags
// scheduled appointments that ended more than the grace period ago.
func (s *Service) MarkNoShows(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.NoShowGrace)
	overdue, err := s.repo.FindOverdueScheduled(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find overdue appointments: %w", err)
	}

	marked := 0
	for _, appt := range overdue {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, schedule.StatusScheduled, schedule.StatusNoShow)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to mark no-show")
			}
			continue
		}
		marked++
		s.logEvent(ctx, appt.ID, EventAppointmentNoShow, map[string]any{
			"reason":   "worker",
			"end_time": appt.EndTime,
		})
	}

	return marked, nil
}

// validate loads the therapist's appointments and blocks around candidates
// and runs the capacity then the conflict checks over the whole batch.
func (s *Service) validate(ctx context.Context, settings schedule.Settings, candidates []schedule.Appointment, ignoreID uuid.UUID) error {
	if len(candidates) == 0 {
		return nil
	}

	window := Filter{
		TherapistID: candidates[0].TherapistID,
		From:        candidates[0].StartTime,
		To:          candidates[len(candidates)-1].EndTime,
	}
	existing, err := s.repo.ListAppointments(ctx, window)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	blocks, err := s.repo.ListBlocks(ctx, window)
	if err != nil {
		return fmt.Errorf("load availability blocks: %w", err)
	}

	existing = s.localAll(existing)
	blocks = s.localBlocks(blocks)
	if err := schedule.CheckBatchCapacity(settings, candidates, existing, ignoreID); err != nil {
		return err
	}
	return schedule.CheckConflicts(candidates, existing, blocks, ignoreID)
}

func (s *Service) withTherapistLock(ctx context.Context, therapistID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithTherapistLock(ctx, therapistID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrScheduleBusy
	}
	return err
}

// retryOnOverlap reruns fn while the store reports an overlap the checks did
// not see, up to the configured number of attempts.
func (s *Service) retryOnOverlap(fn func() error) error {
	for attempt := 1; attempt <= s.cfg.BookingAttempts; attempt++ {
		err := fn()
		if !errors.Is(err, ErrOverlapConstraint) {
			return err
		}
		s.log.Warn().Int("attempt", attempt).Msg("store rejected overlapping appointment, revalidating")
	}
	return ErrScheduleBusy
}

func (s *Service) logRejection(a schedule.Appointment, reason error) {
	s.log.Info().
		Err(reason).
		Str("therapist_id", a.TherapistID.String()).
		Time("start_time", a.StartTime).
		Msg("booking rejected")
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.now(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}
