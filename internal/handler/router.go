package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router with the global middleware stack and every route.
func NewRouter(h *Handler, auth Authenticator, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger)
	r.Use(CORS(corsOrigins))

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(auth))
			r.Post("/{id}/register", h.Register)
			r.Delete("/{id}/register", h.CancelRegistration)
			r.Post("/{id}/payment-intent", h.CreatePaymentIntent)
			r.Post("/{id}/confirm-payment", h.ConfirmPayment)

			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/", h.CreateEvent)
				r.Put("/{id}", h.UpdateEvent)
				r.Delete("/{id}", h.DeleteEvent)
				r.Get("/{id}/registrations", h.ListEventRegistrations)
			})
		})
	})

	r.With(Authenticate(auth)).Get("/me/registrations", h.ListMyRegistrations)

	r.Route("/checkin", func(r chi.Router) {
		r.Use(Authenticate(auth))
		r.Post("/", h.ProcessCheckIn)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/{eventId}/credential", h.GenerateCredential)
			r.Get("/{eventId}/stats", h.CheckInStats)
		})
	})

	return r
}
