package schedule

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("13:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(13, 30), got)
	assert.Equal(t, "13:30", got.String())

	end, err := ParseTimeOfDay("24:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(minutesPerDay), end)

	for _, bad := range []string{"", "noon", "25:00", "10:75", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestSettingsJSON(t *testing.T) {
	raw := `{
		"limits": {
			"weekday": [{"start_time": "07:00", "end_time": "13:00", "limit": 2}, {"start_time": "13:00", "end_time": "15:00", "limit": 1}],
			"saturday": [{"start_time": "08:00", "end_time": "12:00", "limit": 1}]
		},
		"max_evaluations_per_slot": 1
	}`

	var s Settings
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.NoError(t, s.Validate())
	require.Len(t, s.Limits.Weekday, 2)
	assert.Equal(t, TimeSlotLimit{Start: Clock(13, 0), End: Clock(15, 0), Limit: 1}, s.Limits.Weekday[1])

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"start_time":"13:00"`)
}

func TestSettingsBandFor_FirstMatchWins(t *testing.T) {
	s := Settings{Limits: Limits{Weekday: []TimeSlotLimit{
		{Start: Clock(8, 0), End: Clock(12, 0), Limit: 3},
		{Start: Clock(10, 0), End: Clock(14, 0), Limit: 1},
	}}}

	band, ok := s.BandFor(at(0, 11, 0))
	require.True(t, ok)
	assert.Equal(t, 3, band.Limit)

	band, ok = s.BandFor(at(0, 12, 0))
	require.True(t, ok)
	assert.Equal(t, 1, band.Limit)
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())

	tests := []struct {
		name string
		s    Settings
	}{
		{"negative evaluations", Settings{MaxEvaluationsPerSlot: -1}},
		{"inverted band", Settings{Limits: Limits{Weekday: []TimeSlotLimit{{Start: Clock(15, 0), End: Clock(13, 0), Limit: 1}}}}},
		{"negative limit", Settings{Limits: Limits{Saturday: []TimeSlotLimit{{Start: Clock(8, 0), End: Clock(12, 0), Limit: -2}}}}},
		{"past midnight", Settings{Limits: Limits{Weekday: []TimeSlotLimit{{Start: Clock(22, 0), End: Clock(25, 0), Limit: 1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.s.Validate(), ErrValidation)
		})
	}
}
