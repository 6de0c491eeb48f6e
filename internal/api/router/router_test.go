package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perioplabs/periopbot/internal/http/handlers"
	"github.com/perioplabs/periopbot/internal/telegram"
	"github.com/perioplabs/periopbot/pkg/logging"
)

type noopDispatcher struct{}

func (noopDispatcher) HandleUpdate(context.Context, telegram.Update) error { return nil }

func newTestRouter() http.Handler {
	return New(&Config{
		Logger:         logging.Default(),
		WebhookHandler: handlers.NewTelegramWebhookHandler(noopDispatcher{}, "", nil),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	})
}

func TestRoutes(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodPost, "/telegram/webhook", `{"update_id":1}`, http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/telegram/webhook", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}
