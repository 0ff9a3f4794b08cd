package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingsWithBand(start, end TimeOfDay, limit, maxEval int) Settings {
	return Settings{
		Limits: Limits{
			Weekday:  []TimeSlotLimit{{Start: start, End: end, Limit: limit}},
			Saturday: []TimeSlotLimit{{Start: Clock(8, 0), End: Clock(12, 0), Limit: 2}},
		},
		MaxEvaluationsPerSlot: maxEval,
	}
}

func TestCheckCapacity_PatientLimit(t *testing.T) {
	settings := settingsWithBand(Clock(13, 0), Clock(15, 0), 1, 1)
	first := appt(therapist1, at(0, 13, 0), at(0, 14, 0))

	require.NoError(t, CheckCapacity(settings, first, nil, uuid.Nil))

	second := appt(therapist1, at(0, 13, 0), at(0, 14, 0))
	err := CheckCapacity(settings, second, []Appointment{first}, uuid.Nil)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	var cerr *CapacityExceededError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, LimitPatients, cerr.Limit)
	assert.Equal(t, 1, cerr.Occupancy.PatientCount)
	assert.Equal(t, 1, cerr.Occupancy.Limit)
}

func TestCheckCapacity_CountsExactStartOnly(t *testing.T) {
	settings := settingsWithBand(Clock(13, 0), Clock(15, 0), 1, 1)
	existing := []Appointment{appt(therapist1, at(0, 13, 0), at(0, 13, 10))}

	candidate := appt(therapist1, at(0, 13, 10), at(0, 14, 0))
	assert.NoError(t, CheckCapacity(settings, candidate, existing, uuid.Nil))
}

func TestCheckCapacity_IgnoresOtherTherapistsCanceledAndEdited(t *testing.T) {
	settings := settingsWithBand(Clock(13, 0), Clock(15, 0), 1, 1)
	other := appt(therapist2, at(0, 13, 0), at(0, 14, 0))
	canceled := appt(therapist1, at(0, 13, 0), at(0, 14, 0))
	canceled.Status = StatusCanceled
	edited := appt(therapist1, at(0, 13, 0), at(0, 14, 0))

	err := CheckCapacity(settings, edited, []Appointment{other, canceled, edited}, edited.ID)
	assert.NoError(t, err)
}

func TestCheckCapacity_NoBandIsClosed(t *testing.T) {
	settings := settingsWithBand(Clock(13, 0), Clock(15, 0), 3, 1)

	tests := []struct {
		name  string
		start time.Time
	}{
		{"before band", at(0, 12, 59)},
		{"band end is exclusive", at(0, 15, 0)},
		{"sunday uses weekday bands", time.Date(2026, 1, 4, 11, 0, 0, 0, time.UTC)},
		{"saturday outside saturday band", time.Date(2026, 1, 10, 13, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := appt(therapist1, tt.start, tt.start.Add(time.Hour))
			var cerr *CapacityExceededError
			require.ErrorAs(t, CheckCapacity(settings, c, nil, uuid.Nil), &cerr)
			assert.Equal(t, LimitBandClosed, cerr.Limit)
			assert.Equal(t, 0, cerr.Occupancy.Limit)
		})
	}
}

func TestCheckCapacity_ZeroLimitBand(t *testing.T) {
	settings := settingsWithBand(Clock(7, 0), Clock(21, 0), 0, 1)
	c := appt(therapist1, at(0, 10, 0), at(0, 11, 0))
	var cerr *CapacityExceededError
	require.ErrorAs(t, CheckCapacity(settings, c, nil, uuid.Nil), &cerr)
	assert.Equal(t, LimitBandClosed, cerr.Limit)
}

func TestCheckCapacity_SaturdayBand(t *testing.T) {
	settings := settingsWithBand(Clock(13, 0), Clock(15, 0), 1, 1)
	sat := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	first := appt(therapist1, sat, sat.Add(time.Hour))
	second := appt(therapist1, sat, sat.Add(time.Hour))

	assert.NoError(t, CheckCapacity(settings, second, []Appointment{first}, uuid.Nil))
}

func TestCheckCapacity_EvaluationSubLimit(t *testing.T) {
	settings := settingsWithBand(Clock(7, 0), Clock(21, 0), 3, 1)
	first := appt(therapist1, at(0, 10, 0), at(0, 11, 0))
	first.Type = TypeEvaluation

	second := appt(therapist1, at(0, 10, 0), at(0, 11, 0))
	second.Type = TypeEvaluation

	err := CheckCapacity(settings, second, []Appointment{first}, uuid.Nil)
	var cerr *CapacityExceededError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, LimitEvaluations, cerr.Limit)
	assert.Equal(t, 1, cerr.Occupancy.PatientCount)
	assert.False(t, cerr.Occupancy.Full())

	session := appt(therapist1, at(0, 10, 0), at(0, 11, 0))
	assert.NoError(t, CheckCapacity(settings, session, []Appointment{first}, uuid.Nil),
		"non-evaluation types only see the patient limit")
}

func TestMeasureOccupancy(t *testing.T) {
	settings := settingsWithBand(Clock(7, 0), Clock(21, 0), 4, 2)
	eval := appt(therapist1, at(0, 10, 0), at(0, 11, 0))
	eval.Type = TypeEvaluation
	session := appt(therapist1, at(0, 10, 0), at(0, 10, 30))
	later := appt(therapist1, at(0, 10, 30), at(0, 11, 0))

	occ := MeasureOccupancy(settings, appt(therapist1, at(0, 10, 0), at(0, 11, 0)),
		[]Appointment{eval, session, later}, uuid.Nil)
	assert.Equal(t, Occupancy{PatientCount: 2, Limit: 4, EvaluationCount: 1, MaxEvaluations: 2}, occ)
}

func TestCheckBatchCapacity_StopsAtFirst(t *testing.T) {
	settings := settingsWithBand(Clock(7, 0), Clock(21, 0), 1, 1)
	existing := []Appointment{appt(therapist1, at(7, 9, 0), at(7, 10, 0))}
	batch := []Appointment{
		appt(therapist1, at(0, 9, 0), at(0, 10, 0)),
		appt(therapist1, at(7, 9, 0), at(7, 10, 0)),
		appt(therapist1, at(14, 9, 0), at(14, 10, 0)),
	}

	var cerr *CapacityExceededError
	require.ErrorAs(t, CheckBatchCapacity(settings, batch, existing, uuid.Nil), &cerr)
	assert.Equal(t, batch[1].ID, cerr.Instance.ID)
}
