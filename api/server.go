/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the management dashboard

ROUTE GROUPS:
  /api/leases/*       Lease lifecycle and ledgers
  /api/tenants/*      Per-tenant lease listings
  /api/landlords/*    Per-landlord lease listings
  /api/units/*        Per-unit lease listings
  /api/payments/*     Gateway checkout initiation
  /api/gateway/*      Gateway webhook callbacks
  /api/properties/*   Rent roll and arrears reports
  /api/scans/*        Scheduler feed endpoints

SECURITY NOTE:
  No authentication middleware currently. Gateway callbacks should be
  restricted by network policy until signed callbacks are in place.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Lease lifecycle routes
		r.Route("/leases", func(r chi.Router) {
			r.Post("/", h.CreateLease)
			r.Get("/{id}", h.GetLease)
			r.Post("/{id}/extend", h.ExtendLease)
			r.Post("/{id}/terminate", h.TerminateLease)
			r.Post("/{id}/expire", h.ExpireLease)
			r.Post("/{id}/suspend", h.SuspendLease)
			r.Post("/{id}/resume", h.ResumeLease)
			r.Post("/{id}/signatures/{partyID}", h.SignParty)
			r.Post("/{id}/document", h.AttachDocument)
			r.Get("/{id}/ledger", h.GetLeaseLedger)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		// Listing routes
		r.Get("/tenants/{id}/leases", h.ListLeasesByTenant)
		r.Get("/landlords/{id}/leases", h.ListLeasesByLandlord)
		r.Get("/units/{id}/leases", h.ListLeasesByUnit)

		// Gateway routes
		r.Post("/payments/initiate", h.InitiatePayment)
		r.Route("/gateway", func(r chi.Router) {
			r.Post("/validate", h.ValidateCallback)
			r.Post("/callback", h.ConfirmCallback)
		})

		// Report routes
		r.Route("/properties/{id}", func(r chi.Router) {
			r.Get("/rentroll", h.GetRentRoll)
			r.Get("/arrears", h.GetArrearsAging)
		})

		// Scan routes (feed external schedulers)
		r.Route("/scans", func(r chi.Router) {
			r.Get("/signature-reminders", h.ScanSignatureReminders)
			r.Get("/missing-payments", h.ScanMissingPayments)
			r.Get("/upcoming-renewals", h.ScanUpcomingRenewals)
		})
	})

	return r
}
