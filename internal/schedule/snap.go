package schedule

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SnapGrid maps a vertical position in a day column to a start time.
type SnapGrid struct {
	PixelsPerMinute float64
	OpeningHour     int
	Quantum         time.Duration
}

func (g SnapGrid) Validate() error {
	if g.PixelsPerMinute <= 0 {
		return invalid("pixels_per_minute", "must be positive")
	}
	if g.OpeningHour < 0 || g.OpeningHour > 23 {
		return invalid("opening_hour", "must be between 0 and 23")
	}
	if g.Quantum < time.Minute {
		return invalid("quantum", "must be at least one minute")
	}
	return nil
}

// Snap floors offsetPx to the grid quantum and returns the start time on
// day's date. Offsets above the column top snap to the opening hour; offsets
// past midnight are rejected.
func (g SnapGrid) Snap(day time.Time, offsetPx float64) (time.Time, error) {
	if err := g.Validate(); err != nil {
		return time.Time{}, err
	}
	minutes := offsetPx / g.PixelsPerMinute
	if minutes < 0 || math.IsNaN(minutes) {
		minutes = 0
	}
	quantum := g.Quantum.Minutes()
	snapped := math.Floor(minutes/quantum) * quantum
	if snapped >= g.columnMinutes() {
		return time.Time{}, invalid("offset_px", "outside the day column")
	}

	y, m, d := day.Date()
	opening := time.Date(y, m, d, g.OpeningHour, 0, 0, 0, day.Location())
	return opening.Add(time.Duration(snapped * float64(time.Minute))), nil
}

// columnMinutes is the height of a day column, from the opening hour to midnight.
func (g SnapGrid) columnMinutes() float64 {
	return float64((24 - g.OpeningHour) * 60)
}

// Relocate moves a to start, keeping its duration. A nil therapistID keeps
// the current therapist.
func Relocate(a Appointment, start time.Time, therapistID uuid.UUID) Appointment {
	duration := a.Duration()
	a.StartTime = start
	a.EndTime = start.Add(duration)
	if therapistID != uuid.Nil {
		a.TherapistID = therapistID
	}
	return a
}
