// cmd/identity/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"anybook/internal/authsvc"
	"anybook/internal/clients"
	"anybook/internal/docstore"
	"anybook/internal/identity"
	"anybook/internal/notify"
	"anybook/internal/telemetry"
)

type config struct {
	Port              string `env:"PORT" env-default:"8084"`
	CatalogServiceURL string `env:"CATALOG_SERVICE_URL" env-default:"http://localhost:8081"`
	SMTPEnabled       bool   `env:"SMTP_ENABLED" env-default:"false"`

	Mongo     docstore.Config
	Auth      authsvc.Config
	SMTP      notify.SMTPConfig
	Telemetry telemetry.Config
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	var cfg config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		logger.Error("failed to read configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, "anybook-identity", cfg.Telemetry)
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing(ctx)

	db, disconnect, err := docstore.Connect(ctx, cfg.Mongo)
	if err != nil {
		logger.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer disconnect(ctx)
	logger.Info("connected to mongodb", "database", cfg.Mongo.Database)

	var notifier notify.Notifier
	if cfg.SMTPEnabled {
		notifier, err = notify.NewEmailNotifier(cfg.SMTP)
		if err != nil {
			logger.Error("failed to create email notifier", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("smtp disabled, outbound mail will be recorded only")
		notifier = notify.NewMockNotifier()
	}

	profiles := docstore.NewProfiles(db)
	sessions := authsvc.NewSessionManager([]byte(cfg.Auth.JWTSecret))
	auth := authsvc.NewService(db, sessions, notifier, cfg.Auth)

	indexCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := profiles.EnsureIndexes(indexCtx); err != nil {
		logger.Error("failed to ensure profile indexes", "error", err)
		os.Exit(1)
	}
	if err := auth.EnsureIndexes(indexCtx); err != nil {
		logger.Error("failed to ensure credential indexes", "error", err)
		os.Exit(1)
	}

	books := clients.NewCatalogClient(cfg.CatalogServiceURL)
	svc := identity.NewService(auth, sessions, profiles, books, notifier)

	go func() {
		reconcileCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		results, err := svc.Reconcile(reconcileCtx, identity.DefaultAdminSeeds)
		if err != nil {
			logger.Error("admin reconciliation finished with session error", "error", err)
		}
		for _, res := range results {
			if res.Err != nil {
				logger.Error("admin seed failed", "email", res.Email, "error", res.Err)
				continue
			}
			logger.Info("admin seed converged", "email", res.Email, "created", res.Created, "repaired", res.Repaired)
		}
	}()

	handler := identity.NewHandler(svc)
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Route("/", handler.Routes)

	logger.Info("starting identity service", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
