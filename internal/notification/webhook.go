package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// webhookPayload is the JSON body sent for every alert. Trade is omitted for
// alerts not tied to a position.
type webhookPayload struct {
	Level   AlertLevel `json:"level"`
	Kind    string     `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TS      string     `json:"ts"`
	Trade   *Trade     `json:"trade,omitempty"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	ts := alert.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	body, err := json.Marshal(webhookPayload{
		Level:   alert.Level,
		Kind:    alert.Kind,
		Title:   alert.Title,
		Message: alert.Message,
		TS:      ts.UTC().Format(time.RFC3339Nano),
		Trade:   alert.Trade,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s alert: unexpected status %d", alert.Kind, resp.StatusCode)
	}
	log.Printf("[webhook] sent %s alert: %s", alert.Kind, alert.Title)
	return nil
}
