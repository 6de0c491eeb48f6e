package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/perioplabs/periopbot/internal/api/router"
	"github.com/perioplabs/periopbot/internal/bot"
	appconfig "github.com/perioplabs/periopbot/internal/config"
	"github.com/perioplabs/periopbot/internal/dialog"
	"github.com/perioplabs/periopbot/internal/http/handlers"
	"github.com/perioplabs/periopbot/internal/observability/metrics"
	"github.com/perioplabs/periopbot/internal/sheets"
	"github.com/perioplabs/periopbot/internal/telegram"
	"github.com/perioplabs/periopbot/pkg/logging"
)

func main() {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting periopbot", "env", cfg.Env, "port", cfg.Port)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	botMetrics := metrics.NewBotMetrics(nil)

	sheetsClient, err := sheets.New(ctx, sheets.Config{
		SpreadsheetID:   cfg.SheetID,
		CredentialsJSON: cfg.GoogleCredsJSON,
		SlotsWorksheet:  cfg.SlotsWorksheet,
		AuditWorksheet:  cfg.AuditWorksheet,
		SlotColumns:     cfg.SlotColumnsLimit,
		Logger:          logger,
		Metrics:         botMetrics,
	})
	if err != nil {
		logger.Error("failed to build sheets client", "error", err)
		os.Exit(1)
	}

	tgClient, err := telegram.New(telegram.Config{
		Token:      cfg.BotToken,
		BaseURL:    cfg.TelegramAPIBaseURL,
		MaxRetries: 2,
		Logger:     logger.Logger,
	})
	if err != nil {
		logger.Error("failed to build telegram client", "error", err)
		os.Exit(1)
	}

	var sessionStore dialog.SessionStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		sessionStore = dialog.NewRedisSessionStore(redis.NewClient(opts), cfg.SessionTTL)
		logger.Info("using redis session store", "addr", cfg.RedisAddr)
	} else {
		sessionStore = dialog.NewMemorySessionStore()
		logger.Info("using in-memory session store")
	}

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Warn("invalid clinic timezone, falling back to UTC", "timezone", cfg.ClinicTimezone)
		loc = time.UTC
	}

	engine := dialog.New(sheetsClient, sheetsClient, sessionStore, logger,
		dialog.WithLocation(loc),
		dialog.WithMaxSlots(cfg.MaxSlotsToList),
		dialog.WithMetrics(botMetrics),
	)
	shell := bot.NewShell(engine, tgClient, logger, botMetrics)
	webhookHandler := handlers.NewTelegramWebhookHandler(shell, cfg.WebhookSecret, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	if cfg.PublicBaseURL != "" {
		webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/telegram/webhook"
		regCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := tgClient.SetWebhook(regCtx, telegram.SetWebhookRequest{
			URL:                webhookURL,
			SecretToken:        cfg.WebhookSecret,
			DropPendingUpdates: true,
			AllowedUpdates:     []string{"message", "callback_query"},
		})
		cancel()
		if err != nil {
			logger.Error("failed to register webhook", "url", webhookURL, "error", err)
			os.Exit(1)
		}
		logger.Info("webhook registered", "url", webhookURL)
	} else {
		logger.Warn("PUBLIC_BASE_URL not set, skipping webhook registration")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
