package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"github.com/agrocoop/billing-api/pkg/middleware"
	"github.com/agrocoop/billing-api/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP service
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	jwtSecret := []byte(deps.Config.Auth.JWTSecret)

	// API routes, all under /v1 and behind the full middleware chain
	apiMux := http.NewServeMux()
	deps.CatalogHandler.Register(apiMux)
	deps.SubscriptionHandler.Register(apiMux)
	deps.MemberHandler.Register(apiMux)
	deps.SeatHandler.Register(apiMux)
	deps.BillingHandler.Register(apiMux)
	deps.LedgerHandler.Register(apiMux)

	chain := []middleware.Middleware{
		middleware.NewRequestIDMiddleware(),
		middleware.NewRecoveryMiddleware(deps.Logger),
		middleware.NewLoggingMiddleware(deps.Logger),
		observability.NewMetricsMiddleware(),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, middleware.NewRateLimitMiddleware(limiter))
	}
	chain = append(chain, middleware.NewAuthMiddleware(jwtSecret, deps.Logger))

	mux.Handle("/v1/", middleware.Chain(apiMux, chain...))
	deps.Logger.Info("registered API routes", "prefix", "/v1")

	registerUtilityRoutes(mux, deps)

	// Enable CORS for browser clients (admin dashboard, local frontend)
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
		},
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept-Encoding",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
		},
		AllowCredentials: true,
	})

	return corsHandler.Handler(mux)
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unhealthy"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	deps.Logger.Info("registered health check", "path", "/health")

	// Readiness check endpoint
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	// Metrics endpoint (Prometheus)
	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
