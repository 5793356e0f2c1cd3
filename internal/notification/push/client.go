// Package push delivers notifications to user devices through an HTTP push gateway.
package push

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

	"faculty_meetings_backend/platform/config"
	"faculty_meetings_backend/platform/logger"
)

const maxErrorBody = 4 << 10

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type gatewayRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// SendError is returned when the gateway answers with a non-success status.
type SendError struct {
	StatusCode int
	Body       string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports whether resending the same message cannot succeed.
// Client errors are permanent except request timeouts and rate limiting.
func (e *SendError) Permanent() bool {
	if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsPermanent reports whether err is a SendError that should not be retried.
func IsPermanent(err error) bool {
	var sendErr *SendError
	return errors.As(err, &sendErr) && sendErr.Permanent()
}

// NewClient returns nil when no gateway is configured.
func NewClient(cfg config.PushConfig, log *logger.Logger) *Client {
	if !cfg.IsPushEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetPushGatewayURL(), "/"),
		apiKey:  cfg.GetPushGatewayKey(),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Send posts one message to the gateway. The caller's context bounds the attempt.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	payload := gatewayRequest{
		To:    token,
		Title: title,
		Body:  body,
		Data:  data,
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	url := fmt.Sprintf("%s/send", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &SendError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if c.log != nil {
		c.log.Debug("push accepted by gateway", "status", resp.StatusCode)
	}
	return nil
}
