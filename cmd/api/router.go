package main

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cashtrack/cashtrack/internal/config"
	"github.com/cashtrack/cashtrack/internal/handler"
	"github.com/cashtrack/cashtrack/internal/middleware"
)

// routerDeps collects everything the router mounts.
type routerDeps struct {
	Config  *config.Config
	Logger  *slog.Logger
	Tokens  middleware.TokenVerifier
	Limiter middleware.AuthLimiter

	Index    *handler.Handler
	Health   *handler.HealthHandler
	Metrics  *handler.MetricsHandler
	Auth     *handler.AuthHandler
	OAuth    *handler.OAuthHandler
	Expenses *handler.ExpenseHandler
}

// newRouter configures the chi router with all routes and middleware.
func newRouter(d routerDeps) *chi.Mux {
	cfg := d.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recoverer(d.Logger, cfg.IsDevelopment()))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))

	// Without configured origins no CORS headers are sent at all.
	if origins := cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize, cfg.MaxUploadSize+multipartOverhead))

	// Health and metrics (no auth required)
	r.Get("/healthz", d.Health.Healthz)
	r.Get("/readyz", d.Health.Readyz)
	r.Get("/metrics", d.Metrics.Metrics)
	r.Get("/", d.Index.Index)

	requireSession := middleware.Auth(middleware.AuthConfig{
		Logger:     d.Logger,
		Tokens:     d.Tokens,
		CookieName: cfg.SessionCookieName,
	})

	throttle := middleware.RateLimitAuth(middleware.RateLimitConfig{
		Logger:  d.Logger,
		Limiter: d.Limiter,
		Enabled: cfg.RateLimitAuthEnabled,
		RPS:     cfg.RateLimitAuthRPS,
		Burst:   cfg.RateLimitAuthBurst,
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(throttle).Post("/signup", d.Auth.Signup)
		r.With(throttle).Post("/login", d.Auth.Login)
		r.Post("/logout", d.Auth.Logout)
		r.With(requireSession).Get("/me", d.Auth.Me)

		r.Get("/{provider}", d.OAuth.Begin)
		r.Get("/{provider}/callback", d.OAuth.Callback)
	})

	r.Route("/api/expenses", func(r chi.Router) {
		r.Use(requireSession)

		r.Post("/", d.Expenses.Create)
		r.Get("/", d.Expenses.List)

		// Static segments are registered before /{id}.
		r.Get("/report", d.Expenses.Report)
		r.Get("/media/{filePath}", d.Expenses.Media)
		r.Delete("/media/{id}", d.Expenses.DeleteMedia)

		r.Patch("/{id}", d.Expenses.Update)
		r.Put("/{id}", d.Expenses.Update)
		r.Delete("/{id}", d.Expenses.Delete)
	})

	r.NotFound(d.Index.NotFound)
	r.MethodNotAllowed(d.Index.MethodNotAllowed)

	return r
}
