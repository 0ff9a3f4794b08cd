package schedule

import "github.com/google/uuid"

// Occupancy is the state of one therapist's slot at an exact start instant.
type Occupancy struct {
	PatientCount    int
	Limit           int
	EvaluationCount int
	MaxEvaluations  int
}

// Full is true when the band is closed or its patient limit is reached.
func (o Occupancy) Full() bool {
	return o.Limit == 0 || o.PatientCount >= o.Limit
}

func (o Occupancy) EvaluationsFull() bool {
	return o.EvaluationCount >= o.MaxEvaluations
}

// MeasureOccupancy counts the non-canceled appointments of the candidate's
// therapist that start at exactly the candidate's start, skipping ignoreID.
func MeasureOccupancy(settings Settings, candidate Appointment, existing []Appointment, ignoreID uuid.UUID) Occupancy {
	occ := Occupancy{MaxEvaluations: settings.MaxEvaluationsPerSlot}
	if band, ok := settings.BandFor(candidate.StartTime); ok {
		occ.Limit = band.Limit
	}

	for _, a := range existing {
		if a.ID == ignoreID && ignoreID != uuid.Nil {
			continue
		}
		if a.TherapistID != candidate.TherapistID || !a.Status.Occupies() {
			continue
		}
		if !a.StartTime.Equal(candidate.StartTime) {
			continue
		}
		occ.PatientCount++
		if a.Type == TypeEvaluation {
			occ.EvaluationCount++
		}
	}
	return occ
}

// CheckCapacity returns a *CapacityExceededError when candidate does not fit.
// The evaluation sub-limit applies on top of the patient limit.
func CheckCapacity(settings Settings, candidate Appointment, existing []Appointment, ignoreID uuid.UUID) error {
	occ := MeasureOccupancy(settings, candidate, existing, ignoreID)

	fail := func(limit CapacityLimit) error {
		return &CapacityExceededError{Limit: limit, Instance: candidate, Occupancy: occ}
	}
	switch {
	case occ.Limit == 0:
		return fail(LimitBandClosed)
	case occ.Full():
		return fail(LimitPatients)
	case candidate.Type == TypeEvaluation && occ.EvaluationsFull():
		return fail(LimitEvaluations)
	}
	return nil
}

// CheckBatchCapacity checks each candidate in order and stops at the first
// one that does not fit.
func CheckBatchCapacity(settings Settings, candidates, existing []Appointment, ignoreID uuid.UUID) error {
	for _, c := range candidates {
		if err := CheckCapacity(settings, c, existing, ignoreID); err != nil {
			return err
		}
	}
	return nil
}
