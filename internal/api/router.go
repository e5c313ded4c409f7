package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/handlers"
	custommiddleware "github.com/jvandijk/Holdings-Reconciliation-Backend/internal/api/middleware"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/config"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	portfolioService *service.PortfolioService,
	connectionService *service.ConnectionService,
	reconciliationService *service.ReconciliationService,
	resolutionService *service.ResolutionService,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/portfolio", func(r chi.Router) {
			portfolioHandler := handlers.NewPortfolioHandler(portfolioService)
			connectionHandler := handlers.NewConnectionHandler(connectionService)
			reconciliationHandler := handlers.NewReconciliationHandler(reconciliationService)
			duplicateHandler := handlers.NewDuplicateHandler(resolutionService)

			r.Get("/", portfolioHandler.Portfolios)
			r.Post("/", portfolioHandler.CreatePortfolio)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)

				r.Get("/", portfolioHandler.Portfolio)

				r.Get("/connections", connectionHandler.Connections)
				r.Post("/connections", connectionHandler.CreateConnection)

				r.Post("/sync", reconciliationHandler.Sync)
				r.Get("/snapshot", reconciliationHandler.Snapshot)
				r.Get("/positions", reconciliationHandler.Positions)

				r.Get("/duplicates", duplicateHandler.Candidates)
				r.Post("/duplicates/resolve", duplicateHandler.Resolve)
			})
		})

		r.Route("/connection/{uuid}", func(r chi.Router) {
			connectionHandler := handlers.NewConnectionHandler(connectionService)
			r.Use(custommiddleware.ValidateUUIDMiddleware)

			r.Patch("/", connectionHandler.UpdateConnection)
			r.Post("/records", connectionHandler.ImportRecords)
		})
	})

	return r
}
