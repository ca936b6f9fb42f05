package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/pulseawards/vote-payments/internal/creator"
	"github.com/pulseawards/vote-payments/internal/payment"
	"github.com/pulseawards/vote-payments/internal/transport/middleware"
	"github.com/pulseawards/vote-payments/internal/transport/swagger"
)

// PermissionPaymentsRead guards the admin payment endpoints.
const PermissionPaymentsRead = "payments:read"

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, creatorHandler *creator.Handler, adminJWTSecret string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway callback routes, server-to-server, no auth beyond the
		// gateway's own signing scheme
		if webhookHandler != nil {
			r.Post("/webhooks/mpesa", webhookHandler.HandleMpesaCallback)
			r.Post("/webhooks/paystack", webhookHandler.HandlePaystackWebhook)
		}

		// Public voting routes
		if paymentHandler != nil {
			r.Post("/votes", paymentHandler.InitiateVote)
			r.Get("/votes/{id}/status", paymentHandler.GetStatus)
			r.Get("/payments/verify", paymentHandler.VerifyPayment)
		}

		if creatorHandler != nil {
			r.Get("/creators/{id}/tally", creatorHandler.GetTally)
		}

		// Admin routes behind token verification and permission check
		if paymentHandler != nil && adminJWTSecret != "" {
			r.Group(func(ar chi.Router) {
				ar.Use(middleware.AdminAuth(adminJWTSecret, logger))
				ar.Use(middleware.RequirePermissions(PermissionPaymentsRead))

				ar.Get("/admin/payments", paymentHandler.ListPayments)
				ar.Get("/admin/payments/stats", paymentHandler.PaymentStats)
			})
		}
	})
}
