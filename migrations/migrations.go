// SPDX-License-Identifier: GPL-3.0-only

package migrations

import (
	"fmt"

	"accfleet-server/models"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func List() []*gormigrate.Migration {
	return []*gormigrate.Migration{
		{
			ID: "001_backfill_account_status",
			Migrate: func(tx *gorm.DB) error {
				// Rows imported from the legacy sqlite database may carry an
				// empty or unknown status column.
				var accounts []models.Account
				if err := tx.Find(&accounts).Error; err != nil {
					return fmt.Errorf("failed to fetch accounts: %w", err)
				}

				for _, account := range accounts {
					if models.IsValidStatus(account.Status) {
						continue
					}
					if err := tx.Model(&account).Update("status", models.StatusNew).Error; err != nil {
						return fmt.Errorf("failed to backfill status for account %d: %w", account.ID, err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error { return nil },
		},
		{
			ID: "002_normalize_proxy_kind",
			Migrate: func(tx *gorm.DB) error {
				// Early descriptors were stored without a transport kind.
				var accounts []models.Account
				if err := tx.Where("proxy_config IS NOT NULL").Find(&accounts).Error; err != nil {
					return fmt.Errorf("failed to fetch accounts with proxies: %w", err)
				}

				for _, account := range accounts {
					if account.ProxyConfig == nil || account.ProxyConfig.Kind != "" {
						continue
					}
					account.ProxyConfig.Kind = "http"
					if err := tx.Model(&account).Update("proxy_config", account.ProxyConfig).Error; err != nil {
						return fmt.Errorf("failed to update proxy kind for account %d: %w", account.ID, err)
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error { return nil },
		},
	}
}
