package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/rehab-portal/internal/middleware"
	"github.com/otcheredev/rehab-portal/internal/services"
	"github.com/otcheredev/rehab-portal/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HomePath is the first protected view after login
const HomePath = "/portal/booking"

// RouterConfig carries everything the companion router serves
type RouterConfig struct {
	Sessions SessionService
	Portal   *services.Portal
	// Audit is nil when the journal is disabled
	Audit   AuditReader
	Checks  map[string]Checker
	CORS    cors.Options
	Metrics bool
}

// NewRouter builds the companion HTTP surface
func NewRouter(cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.Sessions.Restored, cfg.Checks)
	sessionHandler := NewSessionHandler(cfg.Sessions, HomePath)
	portalHandler := NewPortalHandler(cfg.Portal, cfg.Audit, cfg.Sessions)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Compress(5))
	r.Use(cors.Handler(cfg.CORS))

	// Public views
	r.Get(session.EntryPath, sessionHandler.Entry)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/session", func(r chi.Router) {
		r.Get("/", sessionHandler.Get)
		r.Post("/login", sessionHandler.Login)
		r.Post("/register", sessionHandler.Register)
		r.Post("/logout", sessionHandler.Logout)
	})

	// Protected views
	r.Route("/portal", func(r chi.Router) {
		r.Use(middleware.RequireSession(cfg.Sessions, session.EntryPath))

		r.Get("/booking", portalHandler.Booking)
		r.Post("/booking/patient", portalHandler.SelectPatient)
		r.Post("/booking/provider", portalHandler.SelectProvider)
		r.Post("/booking/slot", portalHandler.SelectSlot)
		r.Post("/booking/book", portalHandler.Book)

		r.Get("/meals", portalHandler.Meals)
		r.Post("/meals", portalHandler.AddMeal)
		r.Post("/meals/date", portalHandler.SetMealDate)
		r.Delete("/meals/{mealType}/{entryID}", portalHandler.RemoveMeal)

		r.Get("/exercises", portalHandler.Exercises)
		r.Post("/exercises/log", portalHandler.LogExercise)
		r.Delete("/exercises/{patientExID}/{entryID}", portalHandler.RemoveExercise)

		r.Get("/audit", portalHandler.Audit)
	})

	return r
}
