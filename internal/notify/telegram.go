package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram sends messages via the Bot API sendMessage method.
type Telegram struct {
	Token   string
	ChatID  string
	APIBase string
	Client  *http.Client
}

func NewTelegram(token, chatID, apiBase string, timeout time.Duration) *Telegram {
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		APIBase: strings.TrimRight(apiBase, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Telegram) Send(ctx context.Context, title, text string) error {
	if t == nil || t.Token == "" || t.ChatID == "" {
		return errors.New("telegram: bot token and chat id are required")
	}

	msg := "<b>" + html.EscapeString(title) + "</b>"
	if text != "" {
		msg += "\n" + html.EscapeString(text)
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.ChatID,
		"text":                     msg,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.APIBase, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the token is part of the URL; keep it out of logs
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram: send request: %w", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &tr)

	if resp.StatusCode == http.StatusOK && (tr.OK || len(raw) == 0) {
		return nil
	}
	apiErr := &APIError{
		Service:     "telegram",
		StatusCode:  resp.StatusCode,
		Description: tr.Description,
		RetryAfter:  time.Duration(tr.Parameters.RetryAfter) * time.Second,
	}
	if apiErr.RetryAfter == 0 {
		apiErr.RetryAfter = retryAfterHeader(resp.Header)
	}
	return apiErr
}
