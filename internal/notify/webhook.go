package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookHandler posts the event as JSON to a configured endpoint.
type WebhookHandler struct {
	url    string
	client *http.Client
}

func NewWebhookHandler(url string) *WebhookHandler {
	return &WebhookHandler{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *WebhookHandler) Send(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func (h *WebhookHandler) Type() string {
	return "webhook"
}
