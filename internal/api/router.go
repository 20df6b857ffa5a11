// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pillowplayer/pillowauth/internal/api/handlers"
	apimiddleware "github.com/pillowplayer/pillowauth/internal/api/middleware"
	"github.com/pillowplayer/pillowauth/internal/licensing"
	"github.com/pillowplayer/pillowauth/internal/metrics"
	"github.com/pillowplayer/pillowauth/internal/web/swagger"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	Secret         apimiddleware.SecretVerifier
	Operations     licensing.Operations
	MetricsManager *metrics.Manager
	Swagger        *swagger.Handler
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)

	licensesHandler := handlers.NewLicensesHandler(deps.Operations)
	blacklistHandler := handlers.NewBlacklistHandler(deps.Operations)
	creditsHandler := handlers.NewCreditsHandler(deps.Operations)

	r.Get("/health", handlers.Health)

	if deps.MetricsManager != nil {
		r.Get("/metrics", handlers.NewMetricsHandler(deps.MetricsManager).ServeMetrics)
	}

	if deps.Swagger != nil {
		deps.Swagger.RegisterRoutes(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.RequireSecret(deps.Secret))

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", licensesHandler.List)
			r.Get("/search", licensesHandler.Search)
			r.Post("/generate", licensesHandler.Generate)
			r.Post("/claim", licensesHandler.Claim)
			r.Post("/verify", licensesHandler.Verify)
			r.Post("/reset", licensesHandler.Reset)
			r.Post("/recover", licensesHandler.Recover)
			r.Post("/delete", licensesHandler.Delete)
			r.Post("/ban", licensesHandler.Ban)
			r.Get("/{keyCode}", licensesHandler.Info)
		})

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/keys", licensesHandler.ListByAccount)
			r.Post("/ban", licensesHandler.BanAccount)
		})

		r.Route("/blacklist", func(r chi.Router) {
			r.Get("/", blacklistHandler.List)
			r.Post("/", blacklistHandler.Add)
			r.Delete("/{hwid}", blacklistHandler.Remove)
		})

		r.Route("/credits/{accountID}", func(r chi.Router) {
			r.Get("/", creditsHandler.Balance)
			r.Post("/adjust", creditsHandler.Adjust)
			r.Post("/redeem", creditsHandler.Redeem)
		})

		r.Get("/stats", licensesHandler.Stats)
	})

	return r
}
