package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service ConsultationService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/consultations", func(r chi.Router) {
		r.Post("/", createConsultationHandler(cfg.Service))
		r.Get("/{id}", getConsultationHandler(cfg.Service))
		r.Put("/{id}/confirm", confirmConsultationHandler(cfg.Service))
		r.Put("/{id}/reject", rejectConsultationHandler(cfg.Service))
		r.Put("/{id}/start", startConsultationHandler(cfg.Service))
		r.Put("/{id}/complete", completeConsultationHandler(cfg.Service))
		r.Put("/{id}/cancel", cancelConsultationHandler(cfg.Service))
		r.Put("/{id}/review", reviewConsultationHandler(cfg.Service))
		r.Put("/{id}/refund", refundConsultationHandler(cfg.Service))
		r.Put("/{id}/fees", updateFeesHandler(cfg.Service))
		r.Post("/{id}/otp", issueOTPHandler(cfg.Service))
	})

	r.Get("/patients/{id}/consultations", listByPatientHandler(cfg.Service))
	r.Get("/doctors/{id}/consultations", listByDoctorHandler(cfg.Service))
	r.Get("/doctors/{id}/revenue", doctorRevenueHandler(cfg.Service))
	r.Get("/users/{id}/consultations/status-counts", statusCountsHandler(cfg.Service))

	return r
}
