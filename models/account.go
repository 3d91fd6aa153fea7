// SPDX-License-Identifier: GPL-3.0-only

package models

import (
	"time"
)

var AllModels []any

type AccountStatus string

const (
	StatusNew            AccountStatus = "new"
	StatusActive         AccountStatus = "active"
	StatusUnauthorized   AccountStatus = "unauthorized"
	StatusBanned         AccountStatus = "banned"
	StatusExpired        AccountStatus = "expired"
	StatusError          AccountStatus = "error"
	StatusCodeError      AccountStatus = "code_error"
	StatusFloodWait      AccountStatus = "flood_wait"
	StatusRecoveryNeeded AccountStatus = "recovery_needed"
)

// IsValidStatus checks that status is one of the lifecycle states.
func IsValidStatus(status AccountStatus) bool {
	switch status {
	case StatusNew, StatusActive, StatusUnauthorized, StatusBanned,
		StatusExpired, StatusError, StatusCodeError, StatusFloodWait,
		StatusRecoveryNeeded:
		return true
	}
	return false
}

// IsHealthy reports whether the account needs no attention. Only active
// accounts count as healthy.
func IsHealthy(status AccountStatus) bool {
	return status == StatusActive
}

// IsTerminal reports whether no outbound transition is attempted
// automatically. Banned is the only terminal state.
func IsTerminal(status AccountStatus) bool {
	return status == StatusBanned
}

// ProxyConfig is the outbound address assigned to an account. It is a logical
// descriptor, not a tunnel; serialized as JSON only at the storage boundary.
type ProxyConfig struct {
	Kind       string `json:"kind"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
	ReverseDNS bool   `json:"rdns"`
}

type Account struct {
	ID             uint          `gorm:"primaryKey"`
	Phone          string        `gorm:"size:20;not null;uniqueIndex"`
	APIID          int           `gorm:"not null"`
	APIHash        string        `gorm:"size:255;not null"`
	Username       *string       `gorm:"size:255;default:null"`
	Status         AccountStatus `gorm:"size:20;not null;index"`
	DiagnosticInfo *string       `gorm:"type:text;default:null"`
	ProxyConfig    *ProxyConfig  `gorm:"serializer:json"`
	LastCheckedAt  *time.Time
	LastUsedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func init() {
	AllModels = append(AllModels, &Account{})
}
