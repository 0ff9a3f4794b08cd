package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

var therapist = uuid.MustParse("2f5d9c1e-7a3b-4e6f-8d2c-1b0a9e000001")

type testServer struct {
	handler http.Handler
	repo    *appointment.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := appointment.NewMemoryRepository()
	cfg := config.Config{
		Location:        time.UTC,
		OpeningHour:     7,
		SnapQuantum:     15 * time.Minute,
		BookingAttempts: 2,
	}
	svc := appointment.NewService(repo, redisclient.NewLocalTherapistLocker(), nil, cfg, zerolog.Nop())
	return &testServer{
		handler: NewRouter(RouterConfig{Service: svc, Location: time.UTC, Logger: zerolog.Nop(), Env: "test"}),
		repo:    repo,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func bookBody(start, end string) BookAppointmentRequest {
	return BookAppointmentRequest{
		PatientID:   uuid.NewString(),
		TherapistID: therapist.String(),
		StartTime:   mustTime(start),
		EndTime:     mustTime(end),
		Type:        "session",
	}
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBookAppointment_Created(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[BookingResponse](t, rec)
	assert.Equal(t, "committed", resp.State)
	require.Len(t, resp.Appointments, 1)
	assert.Equal(t, "scheduled", resp.Appointments[0].Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestBookAppointment_Series(t *testing.T) {
	srv := newTestServer(t)

	body := bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z")
	body.Recurring = true
	body.Recurrence = &RecurrenceRequest{Days: []int{1, 3}, Until: "2026-01-18"}

	rec := srv.do(t, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeBody[BookingResponse](t, rec)
	require.Len(t, resp.Appointments, 4)
	require.NotNil(t, resp.Appointments[0].Recurrence)
	assert.Nil(t, resp.Appointments[1].Recurrence)
}

func TestBookAppointment_BlockConflict(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/blocks", CreateBlockRequest{
		TherapistID: therapist.String(),
		StartTime:   mustTime("2026-01-05T12:00:00Z"),
		EndTime:     mustTime("2026-01-05T13:00:00Z"),
		Title:       "Lunch",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T12:30:00Z", "2026-01-05T13:15:00Z"))
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Error)
	require.NotNil(t, resp.Conflict)
	assert.Equal(t, "block", resp.Conflict.Kind)
	assert.Equal(t, "Lunch", resp.Conflict.Title)
}

func TestBookAppointment_CapacityExceeded(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T13:00:00Z", "2026-01-05T14:00:00Z"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T13:00:00Z", "2026-01-05T14:00:00Z"))
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "capacity_exceeded", resp.Error)
	require.NotNil(t, resp.Capacity)
	assert.Equal(t, "patients", resp.Capacity.Limit)
	assert.Equal(t, 1, resp.Capacity.PatientLimit)
}

func TestBookAppointment_BadInput(t *testing.T) {
	srv := newTestServer(t)

	body := bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z")
	body.PatientID = "nope"
	rec := srv.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeBody[ErrorResponse](t, rec).Error)

	body = bookBody("2026-01-05T10:00:00Z", "2026-01-05T09:00:00Z")
	rec = srv.do(t, http.MethodPost, "/appointments", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	srv.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestGetAppointment(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodGet, "/appointments/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z"))
	id := decodeBody[BookingResponse](t, rec).Appointments[0].ID

	rec = srv.do(t, http.MethodGet, "/appointments/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody[AppointmentResponse](t, rec).ID)
}

func TestListAppointments(t *testing.T) {
	srv := newTestServer(t)

	srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z"))
	srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-06T09:00:00Z", "2026-01-06T10:00:00Z"))

	rec := srv.do(t, http.MethodGet, "/appointments?therapist_id="+therapist.String()+"&from=2026-01-06&to=2026-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AppointmentResponse](t, rec), 1)

	rec = srv.do(t, http.MethodGet, "/appointments?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMoveAppointment(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z"))
	id := decodeBody[BookingResponse](t, rec).Appointments[0].ID

	rec = srv.do(t, http.MethodPost, "/appointments/"+id.String()+"/move", MoveAppointmentRequest{
		Day:             "2026-01-06",
		OffsetPx:        100,
		PixelsPerMinute: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[AppointmentResponse](t, rec)
	// 100 minutes past 07:00 floors to 08:30
	assert.True(t, resp.StartTime.Equal(mustTime("2026-01-06T08:30:00Z")))
	assert.True(t, resp.EndTime.Equal(mustTime("2026-01-06T09:30:00Z")))
}

func TestUpdateStatusAndBilling(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/appointments", bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z"))
	id := decodeBody[BookingResponse](t, rec).Appointments[0].ID

	rec = srv.do(t, http.MethodPatch, "/appointments/"+id.String()+"/status", UpdateStatusRequest{Status: "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody[AppointmentResponse](t, rec).Status)

	rec = srv.do(t, http.MethodPatch, "/appointments/"+id.String()+"/status", UpdateStatusRequest{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPatch, "/appointments/"+id.String()+"/billing", UpdateBillingRequest{Value: 12000, Paid: true})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AppointmentResponse](t, rec)
	assert.Equal(t, int64(12000), resp.Value)
	assert.True(t, resp.Paid)
}

func TestToRule_UntilIsAClinicDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)

	rule, err := toRule(&RecurrenceRequest{Days: []int{1}, Until: "2026-01-12"}, loc)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 1, 12, 0, 0, 0, 0, loc).Equal(rule.Until), "got %s", rule.Until)
	assert.Equal(t, schedule.FrequencyWeekly, rule.Frequency)

	for _, until := range []string{"2026-01-12T00:00:00Z", "12/01/2026", "tomorrow"} {
		_, err := toRule(&RecurrenceRequest{Days: []int{1}, Until: until}, loc)
		var verr *schedule.ValidationError
		require.ErrorAs(t, err, &verr, "until %q", until)
		assert.Equal(t, "recurrence.until", verr.Field)
	}
}

func TestBookAppointment_RejectsTimestampUntil(t *testing.T) {
	srv := newTestServer(t)

	body := bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z")
	body.Recurring = true
	body.Recurrence = &RecurrenceRequest{Days: []int{1}, Until: "2026-01-12T00:00:00Z"}
	rec := srv.do(t, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, rec).Error)

	left, err := srv.repo.ListAppointments(context.Background(), appointment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestDeleteAppointmentAndSeries(t *testing.T) {
	srv := newTestServer(t)

	body := bookBody("2026-01-05T09:00:00Z", "2026-01-05T10:00:00Z")
	body.Recurring = true
	body.Recurrence = &RecurrenceRequest{Days: []int{1}, Until: "2026-01-26"}
	rec := srv.do(t, http.MethodPost, "/appointments", body)
	booked := decodeBody[BookingResponse](t, rec).Appointments
	require.Len(t, booked, 4)

	rec = srv.do(t, http.MethodDelete, "/appointments/"+booked[0].ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/series/"+booked[1].SeriesID.String()+"?from=2026-01-19", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decodeBody[DeleteSeriesResponse](t, rec).Deleted)

	rec = srv.do(t, http.MethodDelete, "/series/"+booked[1].SeriesID.String(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	left, err := srv.repo.ListAppointments(context.Background(), appointment.Filter{})
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestBlocksEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/blocks", CreateBlockRequest{
		TherapistID: therapist.String(),
		StartTime:   mustTime("2026-01-05T12:00:00Z"),
		EndTime:     mustTime("2026-01-05T13:00:00Z"),
		Title:       "Lunch",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	block := decodeBody[BlockResponse](t, rec)

	rec = srv.do(t, http.MethodGet, "/blocks?therapist_id="+therapist.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]BlockResponse](t, rec), 1)

	rec = srv.do(t, http.MethodDelete, "/blocks/"+block.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/blocks/"+block.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schedule.DefaultSettings(), decodeBody[schedule.Settings](t, rec))

	custom := schedule.DefaultSettings()
	custom.MaxEvaluationsPerSlot = 2
	rec = srv.do(t, http.MethodPut, "/settings", custom)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/settings", nil)
	assert.Equal(t, 2, decodeBody[schedule.Settings](t, rec).MaxEvaluationsPerSlot)

	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewBufferString(
		`{"limits":{"weekday":[{"start_time":"12:00","end_time":"09:00","limit":1}]},"max_evaluations_per_slot":1}`))
	bad := httptest.NewRecorder()
	srv.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, "validation_failed", decodeBody[ErrorResponse](t, bad).Error)
}

func TestHealth(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("unreachable") }

	tests := []struct {
		name     string
		postgres PingFunc
		redis    PingFunc
		code     int
		status   string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Logger: zerolog.Nop(), Postgres: tt.postgres, Redis: tt.redis})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.status, decodeBody[ReadinessResponse](t, rec).Status)
		})
	}

	rec := httptest.NewRecorder()
	NewRouter(RouterConfig{Logger: zerolog.Nop()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
