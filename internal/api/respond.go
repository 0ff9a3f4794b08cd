package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps service and engine errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr  *schedule.ValidationError
		nferr *schedule.NotFoundError
		cerr  *schedule.ConflictError
		caerr *schedule.CapacityExceededError
	)

	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.As(err, &nferr):
		writeError(w, http.StatusNotFound, "not_found", nferr.Error())
	case errors.As(err, &cerr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "conflict",
			Details:  cerr.Error(),
			Conflict: toConflictResponse(cerr.Conflict),
		})
	case errors.As(err, &caerr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "capacity_exceeded",
			Details:  caerr.Error(),
			Capacity: toCapacityResponse(caerr),
		})
	case errors.Is(err, appointment.ErrScheduleBusy):
		writeError(w, http.StatusConflict, "schedule_busy", "therapist schedule is being changed, please retry shortly")
	case errors.Is(err, appointment.ErrStaleStatus):
		writeError(w, http.StatusConflict, "stale_status", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
