// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pillowplayer/pillowauth/internal/api"
	"github.com/pillowplayer/pillowauth/internal/audit"
	"github.com/pillowplayer/pillowauth/internal/auth"
	"github.com/pillowplayer/pillowauth/internal/config"
	"github.com/pillowplayer/pillowauth/internal/database"
	"github.com/pillowplayer/pillowauth/internal/domain"
	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/metrics"
	"github.com/pillowplayer/pillowauth/internal/web/swagger"
)

type Application struct {
	version   string
	configDir string
	dataDir   string
	logPath   string
}

func NewApplication(version, configDir, dataDir, logPath string) *Application {
	return &Application{
		version:   version,
		configDir: configDir,
		dataDir:   dataDir,
		logPath:   logPath,
	}
}

// rotatingSecret lets a reloaded adminSecret take effect without a restart.
type rotatingSecret struct {
	current atomic.Pointer[auth.Service]
}

func newRotatingSecret(verifier *auth.Service) *rotatingSecret {
	r := &rotatingSecret{}
	r.current.Store(verifier)
	return r
}

func (r *rotatingSecret) Verify(presented string) error {
	return r.current.Load().Verify(presented)
}

// reload swaps in configured when it differs from previous. An invalid value
// keeps the current secret.
func (r *rotatingSecret) reload(previous, configured string) bool {
	if configured == previous {
		return false
	}
	verifier, err := auth.NewService(configured)
	if err != nil {
		log.Error().Err(err).Msg("Ignoring invalid adminSecret in reloaded config")
		return false
	}
	r.current.Store(verifier)
	log.Info().Msg("Admin secret rotated")
	return true
}

// serviceOptions derives the licensing options shared by the server and the
// local executor of the admin commands.
func serviceOptions(cfg *domain.Config) []licensing.Option {
	return []licensing.Option{
		licensing.WithKeyPrefix(cfg.KeyPrefix),
		licensing.WithRedeemCost(cfg.RedeemCost),
	}
}

func (app *Application) runServer() error {
	log.Info().Str("version", app.version).Msg("Starting pillowauth")

	cfg, err := config.New(app.configDir)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	defer cfg.Close()

	if app.dataDir != "" {
		cfg.SetDataDir(app.dataDir)
	}
	if app.logPath != "" {
		cfg.Config.LogPath = app.logPath
	}

	cfg.ApplyLogConfig()
	cfg.Watch()

	verifier, err := auth.NewService(cfg.Config.AdminSecret)
	if err != nil {
		return fmt.Errorf("invalid adminSecret (run generate-config or hash-secret): %w", err)
	}

	secret := newRotatingSecret(verifier)
	configuredSecret := cfg.Config.AdminSecret
	cfg.OnChange(func(next *domain.Config) {
		if secret.reload(configuredSecret, next.AdminSecret) {
			configuredSecret = next.AdminSecret
		}
	})

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	var observers []licensing.Observer

	var metricsManager *metrics.Manager
	if cfg.Config.MetricsEnabled {
		metricsManager = metrics.NewManager(nil)
		observers = append(observers, metricsManager.VerifyObserver())
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	if cfg.Config.WebhookURL != "" {
		var notifierOpts []audit.Option
		if cfg.Config.DiscordBotToken != "" {
			resolver, err := audit.NewDiscordResolver(cfg.Config.DiscordBotToken)
			if err != nil {
				return fmt.Errorf("failed to initialize name resolver: %w", err)
			}
			defer resolver.Close()
			notifierOpts = append(notifierOpts, audit.WithResolver(resolver))
		}

		notifier := audit.NewWebhookNotifier(cfg.Config.WebhookURL, notifierOpts...)
		defer notifier.Close()
		observers = append(observers, notifier)
		log.Info().Msg("Audit webhook enabled")
	}

	opts := append(serviceOptions(cfg.Config), licensing.WithObservers(observers...))
	service := licensing.NewService(db, opts...)

	if metricsManager != nil {
		metricsManager.SetSource(service)
	}

	swaggerHandler, err := swagger.NewHandler(cfg.Config.BaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize API docs")
		swaggerHandler = nil
	}

	router := api.NewRouter(&api.Dependencies{
		Secret:         secret,
		Operations:     service,
		MetricsManager: metricsManager,
		Swagger:        swaggerHandler,
	})

	// If baseURL is configured, mount the entire app under that path
	var handler http.Handler = router
	if cfg.Config.BaseURL != "" && cfg.Config.BaseURL != "/" {
		parentRouter := chi.NewRouter()
		parentRouter.Mount(strings.TrimSuffix(cfg.Config.BaseURL, "/"), router)
		parentRouter.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, cfg.Config.BaseURL, http.StatusMovedPermanently)
		})
		handler = parentRouter
	}

	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")
		if cfg.Config.BaseURL != "" {
			log.Info().Str("baseURL", cfg.Config.BaseURL).Msg("Serving under base URL")
		}

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
