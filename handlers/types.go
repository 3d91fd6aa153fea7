// SPDX-License-Identifier: GPL-3.0-only

package handlers

import (
	"time"

	"accfleet-server/models"
)

// swagger:model EnrollAccountRequest
type EnrollAccountRequest struct {
	// Phone number in international format
	// required: true
	Phone string `json:"phone" example:"+628123456789"`
	// Verification code, if already received out of band
	Code string `json:"code" example:"12345"`
	// Whether to route the account through an assigned VPN
	UseVPN bool `json:"use_vpn" example:"true"`
}

// swagger:model ReauthenticateRequest
type ReauthenticateRequest struct {
	// Verification code for the relogin challenge
	Code string `json:"code" example:"12345"`
	// Two-factor password, overrides the configured fallback
	Password string `json:"password" example:"MySecretPassword@123"`
}

// swagger:model OperationResponse
type OperationResponse struct {
	// Whether the operation reached a healthy end state
	Success bool `json:"success" example:"true"`
	// Human-readable outcome
	Message string `json:"message" example:"account added successfully"`
	// Lifecycle status the operation committed or observed
	Status models.AccountStatus `json:"status,omitempty" example:"active"`
}

// swagger:model AccountResponse
type AccountResponse struct {
	Phone          string               `json:"phone" example:"+628123456789"`
	Username       *string              `json:"username,omitempty" example:"fleetuser"`
	Status         models.AccountStatus `json:"status" example:"active"`
	DiagnosticInfo *string              `json:"diagnostic_info,omitempty" example:"wait:30"`
	Proxy          *models.ProxyConfig  `json:"proxy,omitempty"`
	LastCheckedAt  *time.Time           `json:"last_checked_at,omitempty"`
	LastUsedAt     *time.Time           `json:"last_used_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// swagger:model AccountListResponse
type AccountListResponse struct {
	Accounts []AccountResponse `json:"accounts"`
	Total    int               `json:"total" example:"3"`
}

// swagger:model ActivityLogResponse
type ActivityLogResponse struct {
	EID       string               `json:"eid" example:"0d7b9c2e-4a7e-4c7d-9f15-2f8f1f1b2a3c"`
	Action    string               `json:"action" example:"check"`
	Status    models.AccountStatus `json:"status" example:"active"`
	Detail    *string              `json:"detail,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// swagger:model ActivityLogListResponse
type ActivityLogListResponse struct {
	Logs []ActivityLogResponse `json:"logs"`
}

// swagger:model RotateVPNResponse
type RotateVPNResponse struct {
	Message string              `json:"message" example:"VPN rotated successfully"`
	Proxy   *models.ProxyConfig `json:"proxy"`
}

// swagger:model BackupResponse
type BackupResponse struct {
	Message string `json:"message" example:"backup complete"`
	// Directory holding the copied database and session artifacts
	Path string `json:"path" example:"backup/20260831_120000"`
}

// swagger:model FleetSummaryResponse
type FleetSummaryResponse struct {
	// Account counts keyed by lifecycle status
	Counts map[models.AccountStatus]int64 `json:"counts"`
	Total  int64                          `json:"total" example:"12"`
}
