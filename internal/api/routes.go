package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the full router: health, API routes behind the owner
// header, and the tracking callbacks mounted without it (mail clients do
// not send custom headers).
func SetupRoutes(h *Handlers, tracking http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", OwnerHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	if tracking != nil {
		r.Mount("/track", tracking)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(ownerContext)

		r.Route("/segments", func(r chi.Router) {
			r.Post("/", h.CreateSegment)
			r.Get("/", h.ListSegments)
			r.Post("/estimate", h.EstimateSegment)
			r.Post("/preview", h.PreviewSegment)
			r.Get("/{id}", h.GetSegment)
			r.Put("/{id}", h.UpdateSegment)
			r.Delete("/{id}", h.DeleteSegment)
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Get("/", h.ListCustomers)
			r.Get("/{id}", h.GetCustomer)
			r.Delete("/{id}", h.DeleteCustomer)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)
			r.Get("/{id}", h.GetCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Post("/{id}/refresh-stats", h.RefreshCampaignStats)
			r.Get("/{id}/logs", h.ListCampaignLogs)
		})

		r.Route("/settings/email", func(r chi.Router) {
			r.Get("/", h.GetEmailSettings)
			r.Put("/", h.UpdateEmailSettings)
			r.Post("/test", h.TestEmailSettings)
		})

		r.Route("/content", func(r chi.Router) {
			r.Post("/campaign", h.GenerateCampaignContent)
			r.Post("/segment", h.SuggestSegment)
		})
	})

	return r
}
