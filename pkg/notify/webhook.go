package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"regwatch/pkg/domain"
)

// Webhook posts discovered events as JSON to a generic endpoint,
// e.g. Zapier or Make
type Webhook struct {
	url       string
	userAgent string
	client    *http.Client
}

// WebhookParams defines webhook notifier configuration
type WebhookParams struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// NewWebhook creates a webhook notifier
func NewWebhook(params WebhookParams) *Webhook {
	timeout := params.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Webhook{
		url:       params.URL,
		userAgent: params.UserAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Name implements Notifier
func (w *Webhook) Name() string { return "webhook" }

// webhookPayload mirrors the event fields a receiving automation expects
type webhookPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Link        string `json:"link"`
	Description string `json:"description"`
}

// Send posts the event to the configured endpoint, expecting a 2xx response
func (w *Webhook) Send(ctx context.Context, ev domain.Event) error {
	body, err := json.Marshal(webhookPayload{
		ID:          ev.ID,
		Title:       ev.Title,
		Date:        ev.DeadlineText,
		Link:        ev.Link,
		Description: ev.Description,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
