package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ezekaj/auto-scouter-sub000/pkg/storage"
)

// LogDeliverer writes notifications to the logger. Useful as a default
// channel and in CLI runs.
type LogDeliverer struct {
	Log Logger
}

func (d *LogDeliverer) Deliver(ctx context.Context, batch []storage.Notification) error {
	if d.Log == nil {
		return nil
	}
	if len(batch) == 1 {
		d.Log.Infof("notification: %s", batch[0].Summary)
		return nil
	}
	d.Log.Infof("digest of %d notifications for alert %d:", len(batch), batch[0].AlertID)
	for _, n := range batch {
		d.Log.Infof("  - %s", n.Summary)
	}
	return nil
}

// WebhookDeliverer POSTs notification batches as JSON to a configured URL,
// retrying transient failures.
type WebhookDeliverer struct {
	URL    string
	client *retryablehttp.Client
}

// NewWebhookDeliverer creates a webhook channel for the given endpoint.
func NewWebhookDeliverer(url string, timeout time.Duration) *WebhookDeliverer {
	client := retryablehttp.NewClient()
	client.Logger = log.New(io.Discard, "", 0)
	client.RetryMax = 3
	client.HTTPClient.Timeout = timeout
	return &WebhookDeliverer{URL: url, client: client}
}

type webhookPayload struct {
	AlertID       int64                  `json:"alert_id"`
	Count         int                    `json:"count"`
	Notifications []storage.Notification `json:"notifications"`
}

func (d *WebhookDeliverer) Deliver(ctx context.Context, batch []storage.Notification) error {
	if len(batch) == 0 {
		return nil
	}
	payload := webhookPayload{AlertID: batch[0].AlertID, Count: len(batch), Notifications: batch}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: HTTP %d", d.URL, resp.StatusCode)
	}
	return nil
}
