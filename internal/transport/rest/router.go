package rest

import (
	"database/sql"
	"log/slog"

	"github.com/frahmantamala/ngo-accountability/internal/feedback"
	"github.com/frahmantamala/ngo-accountability/internal/sweeper"
	"github.com/frahmantamala/ngo-accountability/internal/transaction"
	"github.com/frahmantamala/ngo-accountability/internal/transport/middleware"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	ledgerPinger Pinger,
	authenticator *middleware.Authenticator,
	transactionHandler *transaction.Handler,
	feedbackHandler *feedback.Handler,
	sweeperHandler *sweeper.Handler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db, ledgerPinger)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Bank notification callback. The bank authenticates with a shared
		// secret at the gateway, not with user JWTs.
		r.Post("/withdrawals/notify", transactionHandler.NotifyWithdrawal)

		r.Route("/withdrawals", func(wr chi.Router) {
			wr.Get("/", transactionHandler.ListPending)
			wr.Post("/documents/lookup", transactionHandler.LookupDocuments)

			wr.Route("/{transactionID}", func(tr chi.Router) {
				tr.Get("/", transactionHandler.GetTransaction)
				tr.Post("/document", transactionHandler.AttachDocument)
				tr.Post("/document/file", transactionHandler.AttachDocumentFile)
				tr.Post("/retry-settlement", transactionHandler.RetrySettlement)

				tr.Get("/feedback", feedbackHandler.ListFeedback)

				// Rating requires a signed-in donor.
				tr.Group(func(ar chi.Router) {
					ar.Use(authenticator.RequireAuth)
					ar.Post("/feedback", feedbackHandler.SubmitFeedback)
					ar.Get("/feedback/check", feedbackHandler.CheckFeedback)
				})
			})
		})

		r.Get("/ngos/{ngoID}/reputation", feedbackHandler.GetReputation)

		// Operational endpoints for the background sweeper.
		r.Route("/sweeper", func(sr chi.Router) {
			sr.Post("/run", sweeperHandler.TriggerSweep)
			sr.Get("/stats", sweeperHandler.GetStats)
		})
	})
}
