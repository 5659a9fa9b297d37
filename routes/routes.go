package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/authgate/authgate/config"
	"github.com/authgate/authgate/handlers"
	"github.com/authgate/authgate/middleware"
	"github.com/authgate/authgate/utils"
)

// New assembles the router. Middleware order is deliberate: correlation ID
// first, then CORS, then rate limiting (keyed by IP before authentication),
// then per-group authentication, CSRF, and permission checks.
func New(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	gateway *middleware.AuthGateway,
	csrfMW *middleware.CSRFMiddleware,
	rateMW *middleware.RateLimitMiddleware,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-CSRF-Token", "X-EXTENSION-API-KEY"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.RateLimit.Enabled {
		r.Use(rateMW.Limit)
	}

	// Probes and unauthenticated auth endpoints.
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/token/refresh", authHandler.Refresh)
		r.Get("/validate-session", authHandler.ValidateSession)

		// Everything below requires an authenticated principal. Token
		// minting is for admin and service callers (the API-key path);
		// user credentials are verified upstream in the auth service.
		r.Group(func(r chi.Router) {
			r.Use(gateway.RequireAuth)
			r.Get("/me", authHandler.Me)
			r.Get("/csrf-token", authHandler.CSRFToken)

			r.With(
				gateway.RequirePermission("auth:token:create"),
				csrfMW.Protect,
			).Post("/token", authHandler.MintTokenPair)

			r.With(
				gateway.RequirePermission("auth:service_token:create"),
				csrfMW.Protect,
			).Post("/service-token", authHandler.MintServiceToken)
		})
	})

	// Protected resource routes. Reads need extension:read, writes
	// additionally pass CSRF and need extension:write.
	r.Route("/api/extensions", func(r chi.Router) {
		r.Use(gateway.RequireAuth)
		r.Use(csrfMW.Protect)

		r.With(gateway.RequirePermission("extension:read")).
			Get("/", listExtensions)
		r.With(gateway.RequirePermission("extension:write")).
			Post("/", createExtension)
		r.With(gateway.RequirePermission("extension:background_tasks")).
			Post("/tasks", enqueueExtensionTask)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		logger.Debug("route not found", zap.String("path", req.URL.Path))
		_ = utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse{
			Error:   "not_found",
			Message: "Resource not found",
		})
	})

	return r
}

// The extension endpoints are thin placeholders for the services that sit
// behind the gateway; they exist so the full middleware chain has real
// routes to protect.

func listExtensions(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	_ = utils.WriteOK(w, map[string]interface{}{
		"extensions": []string{},
		"tenant_id":  principal.TenantID,
	})
}

func createExtension(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse{
		Message: "extension registered",
	})
}

func enqueueExtensionTask(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusAccepted, utils.SuccessResponse{
		Message: "task accepted",
	})
}
