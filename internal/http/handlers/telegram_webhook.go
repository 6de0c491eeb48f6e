// Package handlers holds the HTTP handlers of the bot's web surface.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/perioplabs/periopbot/internal/telegram"
	"github.com/perioplabs/periopbot/pkg/logging"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// UpdateDispatcher handles one decoded webhook update.
type UpdateDispatcher interface {
	HandleUpdate(ctx context.Context, upd telegram.Update) error
}

// TelegramWebhookHandler receives Bot API webhook calls.
type TelegramWebhookHandler struct {
	dispatcher UpdateDispatcher
	secret     string
	logger     *logging.Logger
}

// NewTelegramWebhookHandler creates the webhook handler. When secret is
// non-empty, requests must carry it in the Bot API secret-token header.
func NewTelegramWebhookHandler(dispatcher UpdateDispatcher, secret string, logger *logging.Logger) *TelegramWebhookHandler {
	if dispatcher == nil {
		panic("handlers: dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TelegramWebhookHandler{dispatcher: dispatcher, secret: secret, logger: logger}
}

// Handle decodes and dispatches one update. Handler-level failures are
// logged but still answered with 200: Telegram redelivers on non-2xx, and
// redelivery cannot fix a failure we already reported to the user.
func (h *TelegramWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" && r.Header.Get(secretTokenHeader) != h.secret {
		http.Error(w, "invalid secret token", http.StatusUnauthorized)
		return
	}

	var upd telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBytes)).Decode(&upd); err != nil {
		h.logger.Warn("discarding undecodable update", "error", err)
		http.Error(w, "bad update payload", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.HandleUpdate(r.Context(), upd); err != nil {
		h.logger.Error("update handling failed", "update_id", upd.UpdateID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// HealthCheck reports process liveness.
func (h *TelegramWebhookHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
