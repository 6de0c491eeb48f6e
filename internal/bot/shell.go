// Package bot bridges Telegram webhook updates to the dialogue engine and
// renders the engine's replies back through the Bot API.
package bot

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/perioplabs/periopbot/internal/dialog"
	"github.com/perioplabs/periopbot/internal/observability/metrics"
	"github.com/perioplabs/periopbot/internal/telegram"
	"github.com/perioplabs/periopbot/pkg/logging"
)

// Messenger is the outbound surface of the Telegram client the shell needs.
type Messenger interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error
}

// DialogEngine is the inbound surface of the dialogue engine.
type DialogEngine interface {
	Start(ctx context.Context, user dialog.User) ([]dialog.Reply, error)
	HandleCallback(ctx context.Context, user dialog.User, payload string) ([]dialog.Reply, error)
	HandleText(ctx context.Context, user dialog.User, text string) ([]dialog.Reply, error)
}

// Shell routes one update at a time into the engine. Failures are scoped to
// the update that caused them; one user's failure never touches another
// session.
type Shell struct {
	engine  DialogEngine
	tg      Messenger
	logger  *logging.Logger
	metrics *metrics.BotMetrics
}

// NewShell wires the transport shell.
func NewShell(engine DialogEngine, tg Messenger, logger *logging.Logger, m *metrics.BotMetrics) *Shell {
	if engine == nil {
		panic("bot: engine cannot be nil")
	}
	if tg == nil {
		panic("bot: messenger cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Shell{engine: engine, tg: tg, logger: logger, metrics: m}
}

// HandleUpdate dispatches one webhook update.
func (s *Shell) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		return s.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		return s.handleMessage(ctx, upd.Message)
	default:
		s.metrics.ObserveUpdate("other", "ignored")
		return nil
	}
}

func (s *Shell) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	logger := s.logger.With("update_kind", "callback", "correlation_id", uuid.NewString(), "user_id", cq.From.ID)

	// Acknowledge first so the client stops the spinner even if handling
	// fails afterwards.
	if err := s.tg.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{CallbackQueryID: cq.ID}); err != nil {
		logger.Warn("answering callback failed", "error", err)
	}

	user := dialog.User{ID: cq.From.ID, Username: cq.From.Username}
	replies, err := s.engine.HandleCallback(ctx, user, cq.Data)
	if err != nil {
		s.metrics.ObserveUpdate("callback", "error")
		logger.Error("engine rejected callback", "error", err)
		return err
	}

	chatID := cq.From.ID
	var messageID int64
	if cq.Message != nil {
		chatID = cq.Message.Chat.ID
		messageID = cq.Message.MessageID
	}
	if err := s.render(ctx, chatID, messageID, replies); err != nil {
		s.metrics.ObserveUpdate("callback", "error")
		return err
	}
	s.metrics.ObserveUpdate("callback", "ok")
	return nil
}

func (s *Shell) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil {
		s.metrics.ObserveUpdate("message", "ignored")
		return nil
	}
	logger := s.logger.With("update_kind", "message", "correlation_id", uuid.NewString(), "user_id", msg.From.ID)
	user := dialog.User{ID: msg.From.ID, Username: msg.From.Username}
	text := strings.TrimSpace(msg.Text)

	var (
		replies []dialog.Reply
		err     error
	)
	switch {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		replies, err = s.engine.Start(ctx, user)
	case strings.HasPrefix(text, "/"):
		// Unknown commands are dropped, matching the original bot.
		s.metrics.ObserveUpdate("message", "ignored")
		return nil
	default:
		replies, err = s.engine.HandleText(ctx, user, msg.Text)
	}
	if err != nil {
		s.metrics.ObserveUpdate("message", "error")
		logger.Error("engine rejected message", "error", err)
		return err
	}
	if err := s.render(ctx, msg.Chat.ID, 0, replies); err != nil {
		s.metrics.ObserveUpdate("message", "error")
		return err
	}
	s.metrics.ObserveUpdate("message", "ok")
	return nil
}

// render sends the engine's replies in order. Edit replies replace the
// message that carried the pressed button; without a source message they
// degrade to new messages.
func (s *Shell) render(ctx context.Context, chatID, messageID int64, replies []dialog.Reply) error {
	for _, reply := range replies {
		markup := toMarkup(reply.Keyboard)
		if reply.Edit && messageID != 0 {
			err := s.tg.EditMessageText(ctx, telegram.EditMessageTextRequest{
				ChatID:      chatID,
				MessageID:   messageID,
				Text:        reply.Text,
				ReplyMarkup: markup,
			})
			if err != nil {
				return err
			}
			continue
		}
		if _, err := s.tg.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:      chatID,
			Text:        reply.Text,
			ReplyMarkup: markup,
		}); err != nil {
			return err
		}
	}
	return nil
}

func toMarkup(keyboard [][]dialog.Button) *telegram.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]telegram.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{Text: b.Label, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}
