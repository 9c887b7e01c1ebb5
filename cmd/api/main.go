// Package main is the entrypoint for the CashTrack API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/cache"
	"github.com/cashtrack/cashtrack/internal/config"
	"github.com/cashtrack/cashtrack/internal/handler"
	"github.com/cashtrack/cashtrack/internal/media"
	"github.com/cashtrack/cashtrack/internal/metrics"
	"github.com/cashtrack/cashtrack/internal/repository"
	"github.com/cashtrack/cashtrack/internal/server"
	"github.com/cashtrack/cashtrack/internal/service"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// multipartOverhead covers the form fields sent alongside a media file.
const multipartOverhead = 1 << 20

func main() {
	ctx := context.Background()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	if cfg.MigrateOnStart {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			logger.Error("failed to apply migrations",
				slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	mediaStore, err := media.New(cfg.UploadDir, cfg.MaxUploadSize)
	if err != nil {
		repo.Close()
		_ = cacheClient.Close()
		logger.Error("failed to prepare upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}
	logger.Info("media store ready", "dir", mediaStore.Dir(), "max_size", mediaStore.MaxSize())

	// Services
	recorder := metrics.NewInMemory()
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	locker := cache.NewRecordLocker(cacheClient, cfg.RecordLockTTL)

	expenseService := service.NewExpenseService(repo, mediaStore, locker, recorder, logger)
	authService := service.NewAuthService(repo, cacheClient, tokens, cfg.AvatarBaseURL, recorder, logger)

	// Handlers
	cookie := handler.SessionCookie{
		Name:   cfg.SessionCookieName,
		TTL:    tokens.TTL(),
		Secure: !cfg.IsDevelopment(),
	}
	providers := identityProviders(cfg)
	for _, p := range providers {
		logger.Info("federated login enabled", "provider", p.Name())
	}

	r := newRouter(routerDeps{
		Config:   cfg,
		Logger:   logger,
		Tokens:   tokens,
		Limiter:  cacheClient,
		Index:    handler.New(version),
		Health:   handler.NewHealthHandler(repo, cacheClient),
		Metrics:  handler.NewMetricsHandler(recorder),
		Auth:     handler.NewAuthHandler(authService, cookie, logger),
		OAuth:    handler.NewOAuthHandler(authService, cookie, logger, providers...),
		Expenses: handler.NewExpenseHandler(expenseService, logger),
	})

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	srv.OnShutdown("postgres", func(ctx context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(ctx context.Context) error {
		return cacheClient.Close()
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", version,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// identityProviders returns the configured federated login providers.
func identityProviders(cfg *config.Config) []handler.IdentityProvider {
	base := strings.TrimRight(cfg.OAuthCallbackBaseURL, "/")

	var providers []handler.IdentityProvider
	if cfg.GoogleEnabled() {
		providers = append(providers, auth.NewGoogleProvider(
			cfg.GoogleClientID, cfg.GoogleClientSecret, base+"/api/auth/google/callback"))
	}
	if cfg.FacebookEnabled() {
		providers = append(providers, auth.NewFacebookProvider(
			cfg.FacebookAppID, cfg.FacebookAppSecret, base+"/api/auth/facebook/callback"))
	}
	return providers
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
