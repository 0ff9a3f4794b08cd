package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

const dateLayout = "2006-01-02"

// parseTime accepts RFC3339 or a bare date, read in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation(dateLayout, s, loc)
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// parseFilter reads therapist_id, from and to query parameters.
func parseFilter(w http.ResponseWriter, r *http.Request, loc *time.Location) (appointment.Filter, bool) {
	var f appointment.Filter
	q := r.URL.Query()

	if v := q.Get("therapist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return f, false
		}
		f.TherapistID = id
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := parseTime(v, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be RFC3339 or YYYY-MM-DD")
			return f, false
		}
		*p.dst = t
	}
	return f, true
}

func toRule(req *RecurrenceRequest, loc *time.Location) (*schedule.RecurrenceRule, error) {
	if req == nil {
		return nil, nil
	}
	rule := &schedule.RecurrenceRule{Frequency: schedule.Frequency(req.Frequency)}
	if rule.Frequency == "" {
		rule.Frequency = schedule.FrequencyWeekly
	}
	for _, d := range req.Days {
		rule.Days = append(rule.Days, time.Weekday(d))
	}
	if req.Until != "" {
		until, err := time.ParseInLocation(dateLayout, req.Until, loc)
		if err != nil {
			return nil, &schedule.ValidationError{Field: "recurrence.until", Reason: "must be YYYY-MM-DD"}
		}
		rule.Until = until
	}
	return rule, nil
}

func bookAppointmentHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decode(w, r, &req) {
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		therapistID, err := uuid.Parse(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}
		rule, err := toRule(req.Recurrence, loc)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		booking, err := svc.Book(r.Context(), appointment.BookRequest{
			Appointment: schedule.Appointment{
				PatientID:   patientID,
				TherapistID: therapistID,
				StartTime:   req.StartTime,
				EndTime:     req.EndTime,
				Type:        schedule.AppointmentType(req.Type),
				Value:       req.Value,
				Paid:        req.Paid,
			},
			Recurring: req.Recurring,
			Rule:      rule,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if booking.Rejected() {
			writeServiceError(w, r, booking.Reason)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(booking))
	}
}

func listAppointmentsHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseFilter(w, r, loc)
		if !ok {
			return
		}

		appts, err := svc.List(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func moveAppointmentHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req MoveAppointmentRequest
		if !decode(w, r, &req) {
			return
		}

		move := appointment.MoveRequest{
			ID:              id,
			StartTime:       req.StartTime,
			OffsetPx:        req.OffsetPx,
			PixelsPerMinute: req.PixelsPerMinute,
		}
		if req.TherapistID != "" {
			therapistID, err := uuid.Parse(req.TherapistID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
				return
			}
			move.TherapistID = therapistID
		}
		if req.Day != "" {
			day, err := parseTime(req.Day, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_day", "day must be YYYY-MM-DD")
				return
			}
			move.Day = day
		}

		appt, err := svc.Move(r.Context(), move)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateStatusRequest
		if !decode(w, r, &req) {
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, schedule.Status(req.Status))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func updateBillingHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateBillingRequest
		if !decode(w, r, &req) {
			return
		}

		appt, err := svc.UpdateBilling(r.Context(), id, req.Value, req.Paid)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteSeriesHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seriesID, ok := parseUUIDParam(w, r, "seriesID")
		if !ok {
			return
		}

		raw := r.URL.Query().Get("from")
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing_from", "from is required")
			return
		}
		from, err := parseTime(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339 or YYYY-MM-DD")
			return
		}

		n, err := svc.DeleteSeriesFrom(r.Context(), seriesID, from)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, DeleteSeriesResponse{Deleted: n})
	}
}

func listBlocksHandler(svc *appointment.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseFilter(w, r, loc)
		if !ok {
			return
		}

		blocks, err := svc.ListBlocks(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]BlockResponse, 0, len(blocks))
		for _, b := range blocks {
			resp = append(resp, toBlockResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBlockRequest
		if !decode(w, r, &req) {
			return
		}
		therapistID, err := uuid.Parse(req.TherapistID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}

		block, err := svc.CreateBlock(r.Context(), schedule.AvailabilityBlock{
			TherapistID: therapistID,
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			Title:       req.Title,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockResponse(*block))
	}
}

func deleteBlockHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteBlock(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func getSettingsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings, err := svc.Settings(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, settings)
	}
}

func saveSettingsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var settings schedule.Settings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", fmt.Sprintf("could not parse settings: %v", err))
			return
		}

		if err := svc.SaveSettings(r.Context(), settings); err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, settings)
	}
}
