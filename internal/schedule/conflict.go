package schedule

import "github.com/google/uuid"

// Conflict is implemented by *AppointmentConflict and *BlockConflict only.
type Conflict interface {
	Candidate() Appointment
	Interval() Interval
	isConflict()
}

type AppointmentConflict struct {
	Instance Appointment
	Existing Appointment
}

func (c *AppointmentConflict) Candidate() Appointment { return c.Instance }
func (c *AppointmentConflict) Interval() Interval     { return c.Existing.Interval() }
func (*AppointmentConflict) isConflict()              {}

type BlockConflict struct {
	Instance Appointment
	Block    AvailabilityBlock
}

func (c *BlockConflict) Candidate() Appointment { return c.Instance }
func (c *BlockConflict) Interval() Interval     { return c.Block.Interval() }
func (*BlockConflict) isConflict()              {}

// FindConflict scans candidates in order and returns the first collision.
// For each candidate, the therapist's appointments are checked before their
// availability blocks. Canceled appointments and ignoreID never conflict.
func FindConflict(candidates, existing []Appointment, blocks []AvailabilityBlock, ignoreID uuid.UUID) (Conflict, bool) {
	for _, c := range candidates {
		window := c.Interval()

		for _, a := range existing {
			if a.TherapistID != c.TherapistID || !a.Status.Occupies() {
				continue
			}
			if ignoreID != uuid.Nil && a.ID == ignoreID {
				continue
			}
			if window.Overlaps(a.Interval()) {
				return &AppointmentConflict{Instance: c, Existing: a}, true
			}
		}

		for _, b := range blocks {
			if b.TherapistID != c.TherapistID {
				continue
			}
			if window.Overlaps(b.Interval()) {
				return &BlockConflict{Instance: c, Block: b}, true
			}
		}
	}
	return nil, false
}

// CheckConflicts wraps FindConflict as an error.
func CheckConflicts(candidates, existing []Appointment, blocks []AvailabilityBlock, ignoreID uuid.UUID) error {
	if c, ok := FindConflict(candidates, existing, blocks, ignoreID); ok {
		return &ConflictError{Conflict: c}
	}
	return nil
}
