// SPDX-License-Identifier: GPL-3.0-only

package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"accfleet-server/commons"

	"github.com/labstack/gommon/log"
)

// Notifier delivers operator notifications. Delivery is best effort: a failed
// notification is logged and reported as false, never as an error to the
// caller.
type Notifier struct {
	provider NotificationProviders
	logger   *log.Logger
	client   *http.Client
}

func NewNotifier(logger *log.Logger) *Notifier {
	provider := NotificationProviders(commons.GetEnv("NOTIFY_PROVIDER", string(Webhook)))
	if commons.GetEnv("MOCK_NOTIFICATIONS") == "true" {
		logger.Debug("Mock notifications enabled, using mock provider")
		provider = Mock
	}
	return &Notifier{
		provider: provider,
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify dispatches one message and reports delivery.
func (n *Notifier) Notify(ctx context.Context, message string) bool {
	if n == nil {
		return false
	}
	n.logger.Debugf("Dispatching notification:\n- provider=%s", n.provider)

	data := NotificationData{
		Message: message,
		SentAt:  time.Now().Format(time.RFC3339),
	}

	var err error
	switch n.provider {
	case Webhook:
		err = n.dispatchWebhook(ctx, data)
	case Mock:
		err = n.dispatchMock(data)
	default:
		err = fmt.Errorf("unsupported notification provider: %s", n.provider)
	}

	if err != nil {
		n.logger.Errorf("Failed to dispatch notification:\n%v", err)
		return false
	}
	n.logger.Infof("Notification dispatched successfully:\n- provider=%s", n.provider)
	return true
}

func (n *Notifier) dispatchWebhook(ctx context.Context, data NotificationData) error {
	webhookURL := commons.GetEnv("NOTIFY_WEBHOOK_URL")
	if webhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is not configured")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}

	// Receivers may acknowledge with a body; an explicit rejection there
	// counts as a failed delivery even on a 2xx status.
	var ack WebhookResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && !ack.OK && ack.Message != "" {
		return fmt.Errorf("webhook rejected notification: %s", ack.Message)
	}
	return nil
}

func (n *Notifier) dispatchMock(data NotificationData) error {
	n.logger.Info("=== MOCK NOTIFICATION ===")
	n.logger.Infof("Message: %s", data.Message)
	n.logger.Infof("Sent at: %s", data.SentAt)
	n.logger.Info("=== NOTIFICATION COMPLETE ===")
	return nil
}
