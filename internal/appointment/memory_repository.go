package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

// MemoryRepository is a Repository kept in process memory. It enforces the
// same no-overlap rule as the PostgreSQL exclusion constraint.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]schedule.Appointment
	blocks       map[uuid.UUID]schedule.AvailabilityBlock
	settings     *schedule.Settings
	events       []EventLog
	nextEventID  int64
	now          func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[uuid.UUID]schedule.Appointment),
		blocks:       make(map[uuid.UUID]schedule.AvailabilityBlock),
		now:          time.Now,
	}
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.events...)
}

func matches(f Filter, therapistID uuid.UUID, iv schedule.Interval) bool {
	if f.TherapistID != uuid.Nil && therapistID != f.TherapistID {
		return false
	}
	if !f.To.IsZero() && !iv.Start.Before(f.To) {
		return false
	}
	if !f.From.IsZero() && !iv.End.After(f.From) {
		return false
	}
	return true
}

// overlapsActive reports whether a would violate the no-overlap rule against
// stored rows other than itself and skip.
func (r *MemoryRepository) overlapsActive(a schedule.Appointment, skip map[uuid.UUID]bool) bool {
	if !a.Status.Occupies() {
		return false
	}
	for id, other := range r.appointments {
		if id == a.ID || skip[id] {
			continue
		}
		if other.TherapistID != a.TherapistID || !other.Status.Occupies() {
			continue
		}
		if other.Interval().Overlaps(a.Interval()) {
			return true
		}
	}
	return false
}

func sortAppointments(appts []schedule.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if !appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].StartTime.Before(appts[j].StartTime)
		}
		return appts[i].ID.String() < appts[j].ID.String()
	})
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f Filter) ([]schedule.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schedule.Appointment
	for _, a := range r.appointments {
		if matches(f, a.TherapistID, a.Interval()) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*schedule.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) CreateAppointments(_ context.Context, batch []schedule.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// validate the whole batch before touching the map
	for i, a := range batch {
		if _, exists := r.appointments[a.ID]; exists {
			return ErrOverlapConstraint
		}
		if r.overlapsActive(a, nil) {
			return ErrOverlapConstraint
		}
		for _, prev := range batch[:i] {
			if prev.TherapistID == a.TherapistID && prev.Status.Occupies() && a.Status.Occupies() &&
				prev.Interval().Overlaps(a.Interval()) {
				return ErrOverlapConstraint
			}
		}
	}

	now := r.now()
	for _, a := range batch {
		a.CreatedAt = now
		a.UpdatedAt = now
		r.appointments[a.ID] = a
	}
	return nil
}

func (r *MemoryRepository) update(id uuid.UUID, fn func(a *schedule.Appointment) error) (*schedule.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if err := fn(&a); err != nil {
		return nil, err
	}
	if r.overlapsActive(a, nil) {
		return nil, ErrOverlapConstraint
	}
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentTimes(_ context.Context, id, therapistID uuid.UUID, start, end time.Time) (*schedule.Appointment, error) {
	return r.update(id, func(a *schedule.Appointment) error {
		a.TherapistID = therapistID
		a.StartTime = start
		a.EndTime = end
		return nil
	})
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to schedule.Status) (*schedule.Appointment, error) {
	return r.update(id, func(a *schedule.Appointment) error {
		if a.Status != from {
			return ErrAppointmentNotFound
		}
		a.Status = to
		return nil
	})
}

func (r *MemoryRepository) UpdateAppointmentBilling(_ context.Context, id uuid.UUID, value int64, paid bool) (*schedule.Appointment, error) {
	return r.update(id, func(a *schedule.Appointment) error {
		a.Value = value
		a.Paid = paid
		return nil
	})
}

func (r *MemoryRepository) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *MemoryRepository) DeleteSeriesFrom(_ context.Context, seriesID uuid.UUID, from time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, a := range r.appointments {
		if a.SeriesID == nil || *a.SeriesID != seriesID || a.StartTime.Before(from) {
			continue
		}
		delete(r.appointments, id)
		n++
	}
	return n, nil
}

func (r *MemoryRepository) ListBlocks(_ context.Context, f Filter) ([]schedule.AvailabilityBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schedule.AvailabilityBlock
	for _, b := range r.blocks {
		if matches(f, b.TherapistID, b.Interval()) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (r *MemoryRepository) CreateBlock(_ context.Context, b schedule.AvailabilityBlock) (*schedule.AvailabilityBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blocks[b.ID] = b
	return &b, nil
}

func (r *MemoryRepository) DeleteBlock(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[id]; !ok {
		return ErrBlockNotFound
	}
	delete(r.blocks, id)
	return nil
}

func (r *MemoryRepository) GetSettings(_ context.Context) (*schedule.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settings == nil {
		return nil, ErrSettingsNotFound
	}
	s := *r.settings
	return &s, nil
}

func (r *MemoryRepository) SaveSettings(_ context.Context, s schedule.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = &s
	return nil
}

func (r *MemoryRepository) FindOverdueScheduled(_ context.Context, endedBefore time.Time) ([]schedule.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []schedule.Appointment
	for _, a := range r.appointments {
		if a.Status == schedule.StatusScheduled && a.EndTime.Before(endedBefore) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}
