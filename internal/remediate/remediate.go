// Package remediate calls out to a deployment platform to redeploy a
// service that has stayed down.
package remediate

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

	"github.com/hamed0406/sitewatch/internal/config"
)

type Trigger interface {
	TriggerRedeploy(ctx context.Context, serviceID, reason string) error
}

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("remediation disabled")

type Noop struct{}

func (Noop) TriggerRedeploy(context.Context, string, string) error { return ErrDisabled }

// DeployHook POSTs an authenticated JSON request to a redeploy endpoint.
type DeployHook struct {
	URL    string
	Token  string
	Client *http.Client
}

// HookError is a non-2xx answer from the deploy hook.
type HookError struct {
	StatusCode int
	Body       string
}

func (e *HookError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("deploy hook: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("deploy hook: status %d: %s", e.StatusCode, e.Body)
}

func NewDeployHook(url, token string, timeout time.Duration) *DeployHook {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DeployHook{URL: url, Token: token, Client: &http.Client{Timeout: timeout}}
}

// New returns Noop when remediation is off (threshold 0).
func New(cfg config.RemediationConfig) Trigger {
	if cfg.Threshold <= 0 || cfg.HookURL == "" {
		return Noop{}
	}
	return NewDeployHook(cfg.HookURL, cfg.Token, cfg.Timeout)
}

type hookPayload struct {
	ServiceID string `json:"service_id"`
	Reason    string `json:"reason,omitempty"`
}

func (h *DeployHook) TriggerRedeploy(ctx context.Context, serviceID, reason string) error {
	body, err := json.Marshal(hookPayload{ServiceID: serviceID, Reason: reason})
	if err != nil {
		return fmt.Errorf("deploy hook: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("deploy hook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deploy hook: send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &HookError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return nil
}
