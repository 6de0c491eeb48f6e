// Package router assembles the bot's HTTP surface: the Telegram webhook,
// liveness and metrics endpoints.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/perioplabs/periopbot/internal/http/handlers"
	httpmiddleware "github.com/perioplabs/periopbot/internal/http/middleware"
	"github.com/perioplabs/periopbot/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *handlers.TelegramWebhookHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.WebhookHandler.HealthCheck)
	r.Post("/telegram/webhook", cfg.WebhookHandler.Handle)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
