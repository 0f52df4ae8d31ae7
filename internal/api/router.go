package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/healthbridge/appointment-engine/internal/conversation"
	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

type RouterConfig struct {
	Directory    *scheduling.Directory
	Ledger       *scheduling.Ledger
	Lifecycle    *scheduling.Lifecycle
	Projector    *scheduling.Projector
	Orchestrator *conversation.Orchestrator
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	JWTSecret    string
	Env          string
	Version      string
	Log          *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints are unauthenticated so probes can reach them.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandlers(cfg.Directory, cfg.Ledger, cfg.Lifecycle, cfg.Projector)
	chat := NewChatHandlers(cfg.Orchestrator)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Post("/doctors", h.CreateDoctor)
		r.Get("/doctors", h.ListDoctors)
		r.Delete("/doctors/{id}", h.DeleteDoctor)
		r.Get("/doctors/{id}/availability", h.DoctorAvailability)

		r.Post("/patients", h.CreatePatient)
		r.Get("/patients", h.ListPatients)
		r.Delete("/patients/{id}", h.DeletePatient)

		r.Post("/timeslots", h.CreateSlot)
		r.Get("/timeslots", h.ListSlots)
		r.Delete("/timeslots/{id}", h.DeleteSlot)
		r.Post("/timeslots/{id}/block", h.BlockSlot)
		r.Post("/timeslots/{id}/unblock", h.UnblockSlot)

		r.Post("/appointments", h.BookAppointment)
		r.Get("/appointments", h.ListAppointments)
		r.Get("/appointments/{id}", h.GetAppointment)
		r.Patch("/appointments/{id}/status", h.UpdateAppointmentStatus)
		r.Delete("/appointments/{id}", h.DeleteAppointment)

		r.Post("/chat", chat.Message)
		r.Post("/chat/select-doctor", chat.SelectDoctor)
		r.Post("/chat/select-slot", chat.SelectSlot)
		r.Post("/chat/clear", chat.Clear)
	})

	return r
}
