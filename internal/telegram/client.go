// Package telegram is a hand-wired client for the subset of the Telegram
// Bot API this bot uses: sending and editing messages with inline keyboards,
// answering callback queries and managing the webhook registration.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

const (
	defaultBaseURL   = "https://api.telegram.org"
	defaultUserAgent = "periopbot/0.1"
)

// Config controls how the client behaves.
type Config struct {
	Token      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
}

// Client wraps the Bot API endpoints relevant to the scheduling bot.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	userAgent  string
}

// APIError is a non-2xx Bot API response.
type APIError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: api error %d (%d): %s", e.StatusCode, e.ErrorCode, e.Description)
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// GetMe fetches the bot's own account, useful as a startup credential check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	data, err := c.invoke(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	return decodeResult[User](data)
}

// SendMessage posts a new message.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.ChatID == 0 {
		return nil, errors.New("telegram: chat id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("telegram: message text is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal sendMessage body: %w", err)
	}
	data, err := c.invoke(ctx, "sendMessage", body)
	if err != nil {
		return nil, err
	}
	return decodeResult[Message](data)
}

// EditMessageText replaces the text and keyboard of a previously sent
// message. A "message is not modified" rejection is not treated as failure.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	if req.ChatID == 0 || req.MessageID == 0 {
		return errors.New("telegram: chat id and message id are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("telegram: marshal editMessageText body: %w", err)
	}
	_, err = c.invoke(ctx, "editMessageText", body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	if strings.TrimSpace(req.CallbackQueryID) == "" {
		return errors.New("telegram: callback query id is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("telegram: marshal answerCallbackQuery body: %w", err)
	}
	_, err = c.invoke(ctx, "answerCallbackQuery", body)
	return err
}

// SetWebhook registers the webhook URL.
func (c *Client) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return errors.New("telegram: webhook url is required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("telegram: marshal setWebhook body: %w", err)
	}
	_, err = c.invoke(ctx, "setWebhook", body)
	return err
}

// DeleteWebhook removes the webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.invoke(ctx, "deleteWebhook", nil)
	return err
}

// envelope is the Bot API response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) invoke(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	fullURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("telegram: build request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == c.maxRetries {
				return nil, fmt.Errorf("telegram: http error: %w", err)
			}
			lastErr = err
			c.logRetry(method, attempt, 0, err)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("telegram: read response: %w", readErr)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("telegram: decode response: %w", err)
		}
		if env.OK {
			return env.Result, nil
		}
		apiErr := &APIError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
		}
		if attempt < c.maxRetries && shouldRetry(resp.StatusCode) {
			lastErr = apiErr
			c.logRetry(method, attempt, resp.StatusCode, apiErr)
			if sleepErr := c.sleep(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}
		return nil, apiErr
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("telegram: request failed without response")
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) logRetry(method string, attempt, status int, err error) {
	c.logger.Warn("retrying telegram call",
		"method", method,
		"attempt", attempt+1,
		"status", status,
		"error", err,
	)
}

func decodeResult[T any](data json.RawMessage) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("telegram: decode result: %w", err)
	}
	return &out, nil
}
