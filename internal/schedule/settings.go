package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// TimeOfDay is a local wall-clock time in minutes since midnight.
type TimeOfDay int

func Clock(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// TimeOfDayOf drops the date and sub-minute part of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, _ := t.Clock()
	return Clock(h, m)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || Clock(h, m) > minutesPerDay {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return Clock(h, m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TimeSlotLimit caps how many appointments may start at one instant inside [Start, End).
type TimeSlotLimit struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
	Limit int       `json:"limit"`
}

func (l TimeSlotLimit) Contains(t TimeOfDay) bool {
	return t >= l.Start && t < l.End
}

type Limits struct {
	Weekday  []TimeSlotLimit `json:"weekday"`
	Saturday []TimeSlotLimit `json:"saturday"`
}

// Settings is the clinic-wide capacity configuration. It is passed by value
// into every capacity check.
type Settings struct {
	Limits                Limits `json:"limits"`
	MaxEvaluationsPerSlot int    `json:"max_evaluations_per_slot"`
}

func DefaultSettings() Settings {
	return Settings{
		Limits: Limits{
			Weekday:  []TimeSlotLimit{{Start: Clock(7, 0), End: Clock(21, 0), Limit: 1}},
			Saturday: []TimeSlotLimit{{Start: Clock(8, 0), End: Clock(12, 0), Limit: 1}},
		},
		MaxEvaluationsPerSlot: 1,
	}
}

func (s Settings) Validate() error {
	if s.MaxEvaluationsPerSlot < 0 {
		return invalid("max_evaluations_per_slot", "must not be negative")
	}
	check := func(name string, bands []TimeSlotLimit) error {
		for i, b := range bands {
			field := fmt.Sprintf("limits.%s[%d]", name, i)
			if b.Start < 0 || b.End > minutesPerDay {
				return invalid(field, "band outside the day")
			}
			if b.End <= b.Start {
				return invalid(field, "end_time must be after start_time")
			}
			if b.Limit < 0 {
				return invalid(field, "limit must not be negative")
			}
		}
		return nil
	}
	if err := check("weekday", s.Limits.Weekday); err != nil {
		return err
	}
	return check("saturday", s.Limits.Saturday)
}

// BandFor returns the first band containing t's time of day, using the
// Saturday set on Saturdays and the weekday set on every other day.
func (s Settings) BandFor(t time.Time) (TimeSlotLimit, bool) {
	bands := s.Limits.Weekday
	if t.Weekday() == time.Saturday {
		bands = s.Limits.Saturday
	}
	tod := TimeOfDayOf(t)
	for _, b := range bands {
		if b.Contains(tod) {
			return b, true
		}
	}
	return TimeSlotLimit{}, false
}
