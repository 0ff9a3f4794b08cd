package schedule

import (
	"time"

	"github.com/google/uuid"
)

// MaxSeriesInstances bounds a single expansion.
const MaxSeriesInstances = 520

// InstanceID derives a series member's id from the series and its start, so
// expanding the same rule twice yields the same ids.
func InstanceID(seriesID uuid.UUID, start time.Time) uuid.UUID {
	return uuid.NewSHA1(seriesID, []byte(start.UTC().Format(time.RFC3339Nano)))
}

func seriesIDFor(anchor Appointment) uuid.UUID {
	if anchor.SeriesID != nil {
		return *anchor.SeriesID
	}
	if anchor.ID != uuid.Nil {
		return uuid.NewSHA1(anchor.ID, []byte("series"))
	}
	return uuid.New()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Expand turns an anchor appointment and an optional rule into the ordered
// instances of its series. Without a recurring rule the anchor comes back
// alone, stripped of series metadata. Instances keep the anchor's time of day
// and duration; only the first carries the rule.
func Expand(anchor Appointment, rule *RecurrenceRule) ([]Appointment, error) {
	if !anchor.Interval().Valid() {
		return nil, invalid("end_time", "must be after start_time")
	}

	if !rule.Recurring() {
		single := anchor
		single.SeriesID = nil
		single.Recurrence = nil
		if single.ID == uuid.Nil {
			single.ID = uuid.New()
		}
		return []Appointment{single}, nil
	}

	if rule.Frequency != "" && rule.Frequency != FrequencyWeekly {
		return nil, invalid("recurrence.frequency", "only weekly is supported")
	}
	if rule.Until.IsZero() {
		return nil, invalid("recurrence.until", "is required")
	}

	var days [7]bool
	for _, d := range rule.Days {
		if d < time.Sunday || d > time.Saturday {
			return nil, invalid("recurrence.days", "weekday must be between 0 and 6")
		}
		days[d] = true
	}

	loc := anchor.StartTime.Location()
	first := startOfDay(anchor.StartTime)
	last := startOfDay(rule.Until.In(loc))
	if last.Before(first) {
		return nil, invalid("recurrence.until", "is before the first appointment")
	}

	seriesID := seriesIDFor(anchor)
	hour, minute, sec := anchor.StartTime.Clock()
	nsec := anchor.StartTime.Nanosecond()
	duration := anchor.Duration()

	var out []Appointment
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if !days[day.Weekday()] {
			continue
		}
		if len(out) == MaxSeriesInstances {
			return nil, invalid("recurrence.until", "series is too long")
		}

		start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, sec, nsec, loc)
		inst := anchor
		inst.ID = InstanceID(seriesID, start)
		inst.StartTime = start
		inst.EndTime = start.Add(duration)
		sid := seriesID
		inst.SeriesID = &sid
		inst.Recurrence = nil
		if len(out) == 0 {
			r := *rule
			r.Frequency = FrequencyWeekly
			r.Days = append([]time.Weekday(nil), rule.Days...)
			inst.Recurrence = &r
		}
		out = append(out, inst)
	}

	if len(out) == 0 {
		return nil, invalid("recurrence.days", "no weekday falls inside the series window")
	}
	return out, nil
}
