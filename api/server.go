/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*       User markers, session rollover, per-user sub-resources
  /api/rules/*       Rule mutations addressed by rule id
  /api/categories/*  Category mutations addressed by category id
  /api/expenses/*    Expense removal addressed by expense id
  /api/admin/*       Admin operations
  /api/scenarios/*   Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware. The user id path segment is trusted.

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
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/month", h.GetUserMonth)
				r.Post("/session", h.StartSession)

				r.Route("/income", func(r chi.Router) {
					r.Get("/", h.GetIncomeHistory)
					r.Get("/{month}", h.GetIncome)
					r.Put("/{month}", h.SetIncome)
					r.Post("/{month}/add", h.AddIncome)
				})

				r.Route("/rules", func(r chi.Router) {
					r.Get("/", h.ListRules)
					r.Post("/", h.CreateRule)
					r.Get("/total", h.GetRulesTotal)
				})

				r.Route("/categories", func(r chi.Router) {
					r.Get("/{month}", h.GetCategories)
					r.Post("/{month}", h.CreateCategory)
				})

				r.Route("/expenses", func(r chi.Router) {
					r.Get("/{month}", h.ListExpenses)
					r.Post("/{month}", h.CreateExpense)
				})

				r.Route("/savings", func(r chi.Router) {
					r.Get("/", h.GetSavingsTotal)
					r.Get("/history", h.GetSavingsHistory)
					r.Get("/{month}", h.GetSavingsMonth)
					r.Post("/{month}/leftover", h.AddLeftover)
				})

				r.Get("/summary/{month}", h.GetSummary)
			})
		})

		// Mutations addressed by resource id rather than user
		r.Patch("/rules/{ruleID}", h.UpdateRule)
		r.Delete("/rules/{ruleID}", h.DeleteRule)
		r.Patch("/categories/{categoryID}", h.UpdateCategory)
		r.Delete("/categories/{categoryID}", h.DeleteCategory)
		r.Delete("/expenses/{expenseID}", h.DeleteExpense)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover/sweep", h.TriggerSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
