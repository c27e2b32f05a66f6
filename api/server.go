/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request log (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/persons/*                  People
  /api/profiles, /api/batches     Programs
  /api/enrollments
  /api/teachers, /api/teacher-assignments
  /api/guardian-relationships, /api/sibling-relationships
  /api/subscriptions, /api/billing-assignments
  /api/students/*                 Roster records
  /api/duplicates/*               Duplicate review
  /api/dashboard/*                Payment health counts
  /api/scenarios/*                Demo data
  /healthz                        Liveness

SEE ALSO:
  - handlers.go, students.go, scenarios.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured. Empty
// corsOrigins allows any origin.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Cache", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/persons", func(r chi.Router) {
			r.Post("/", h.CreatePerson)
			r.Get("/{id}", h.GetPerson)
		})

		r.Post("/profiles", h.CreateProfile)

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", h.CreateBatch)
			r.Get("/{id}/roster", h.GetBatchRoster)
		})

		r.Post("/enrollments", h.CreateEnrollment)

		// Teacher routes
		r.Post("/teachers", h.CreateTeacher)
		r.Post("/teacher-assignments", h.CreateTeacherAssignment)

		// Relationship routes
		r.Post("/guardian-relationships", h.CreateGuardianRelationship)
		r.Post("/sibling-relationships", h.CreateSiblingRelationship)

		// Billing routes
		r.Post("/subscriptions", h.CreateSubscription)
		r.Post("/billing-assignments", h.CreateBillingAssignment)

		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}/payment-health", h.GetStudentPaymentHealth)
		})

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", h.ListDuplicates)
			r.Post("/resolve", h.ResolveDuplicates)
			r.Post("/batch-resolve", h.BatchResolveDuplicates)
		})

		r.Get("/dashboard/payment-health", h.PaymentHealthDashboard)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
