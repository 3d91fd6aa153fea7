// SPDX-License-Identifier: GPL-3.0-only

package notifications

type NotificationProviders string

const (
	Webhook NotificationProviders = "webhook"
	Mock    NotificationProviders = "mock"
)

type NotificationData struct {
	Message string `json:"message"`
	SentAt  string `json:"sent_at"`
}

type WebhookResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
