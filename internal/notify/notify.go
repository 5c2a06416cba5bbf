package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hamed0406/sitewatch/internal/config"
)

// Notifier delivers one message to the configured chat endpoint.
type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// APIError is a non-2xx answer from a messaging API.
type APIError struct {
	Service     string
	StatusCode  int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Description)
}

// Retryable reports whether sending again may succeed: rate limits and
// server-side failures are, other client errors are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// New builds the single notifier selected by cfg.Kind.
func New(cfg config.NotifyConfig, timeout time.Duration) (Notifier, error) {
	switch cfg.Kind {
	case "telegram", "":
		return NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, timeout), nil
	case "slack":
		s := NewSlack(cfg.SlackWebhook)
		if s == nil {
			return nil, fmt.Errorf("slack: webhook is required")
		}
		if timeout > 0 {
			s.Client.Timeout = timeout
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Kind)
	}
}

func retryAfterHeader(h http.Header) time.Duration {
	if s := h.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
