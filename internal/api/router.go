package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service  *appointment.Service
	Location *time.Location
	Logger   zerolog.Logger
	Postgres PingFunc
	Redis    PingFunc
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	svc := cfg.Service

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(svc, loc))
		r.Get("/", listAppointmentsHandler(svc, loc))
		r.Get("/{id}", getAppointmentHandler(svc))
		r.Delete("/{id}", deleteAppointmentHandler(svc))
		r.Post("/{id}/move", moveAppointmentHandler(svc, loc))
		r.Patch("/{id}/status", updateStatusHandler(svc))
		r.Patch("/{id}/billing", updateBillingHandler(svc))
	})
	r.Delete("/series/{seriesID}", deleteSeriesHandler(svc, loc))

	// Availability blocks
	r.Route("/blocks", func(r chi.Router) {
		r.Get("/", listBlocksHandler(svc, loc))
		r.Post("/", createBlockHandler(svc))
		r.Delete("/{id}", deleteBlockHandler(svc))
	})

	// Scheduling settings
	r.Get("/settings", getSettingsHandler(svc))
	r.Put("/settings", saveSettingsHandler(svc))

	return r
}
