package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avalon-clinic/scheduling-engine/internal/appointments"
	httpmiddleware "github.com/avalon-clinic/scheduling-engine/internal/http/middleware"
	"github.com/avalon-clinic/scheduling-engine/internal/scheduling"
	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SchedulingHandler   *scheduling.Handler
	AppointmentsHandler *appointments.Handler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	RateLimitPerSecond  float64
	RateLimitBurst      int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.Logger))
	}

	// Public endpoints (health, metrics, gateway webhooks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.AppointmentsHandler != nil {
			public.Post("/webhooks/payments", cfg.AppointmentsHandler.PaymentWebhook)
		}
	})

	if cfg.SchedulingHandler != nil {
		r.Route("/doctors/{doctorID}", func(doctor chi.Router) {
			doctor.Route("/blocks", func(blocks chi.Router) {
				blocks.Get("/", cfg.SchedulingHandler.ListBlocks)
				blocks.Post("/generate", cfg.SchedulingHandler.GenerateBlocks)
				blocks.Post("/delete", cfg.SchedulingHandler.BulkDelete)
			})
			doctor.Get("/slots", cfg.SchedulingHandler.ListSlots)
		})
		r.Route("/blocks/{blockID}", func(block chi.Router) {
			block.Post("/enable", cfg.SchedulingHandler.EnableBlock)
			block.Post("/disable", cfg.SchedulingHandler.DisableBlock)
		})
	}

	if cfg.AppointmentsHandler != nil {
		r.Route("/appointments", func(appts chi.Router) {
			appts.Post("/", cfg.AppointmentsHandler.Create)
			appts.Get("/{appointmentID}", cfg.AppointmentsHandler.Get)
			appts.Patch("/{appointmentID}/status", cfg.AppointmentsHandler.UpdateStatus)
		})
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
