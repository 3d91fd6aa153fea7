// SPDX-License-Identifier: GPL-3.0-only

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accfleet-server/crypto"
	"accfleet-server/models"

	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("account not found")

const encPrefix = "enc:"

// Store is the only component that touches persisted account state. All
// lifecycle transitions are committed through it so concurrent scanners
// observe consistent rows.
type Store struct {
	conn   *gorm.DB
	crypto *crypto.Crypto
	logger *log.Logger
}

func New(conn *gorm.DB, c *crypto.Crypto, logger *log.Logger) *Store {
	return &Store{conn: conn, crypto: c, logger: logger}
}

// Get returns the account for phone, or ErrNotFound.
func (s *Store) Get(ctx context.Context, phone string) (*models.Account, error) {
	var account models.Account
	err := s.conn.WithContext(ctx).Where("phone = ?", phone).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %w", phone, err)
	}
	if err := s.revealCredentials(&account); err != nil {
		return nil, err
	}
	return &account, nil
}

// Exists reports whether phone is already enrolled.
func (s *Store) Exists(ctx context.Context, phone string) (bool, error) {
	var count int64
	err := s.conn.WithContext(ctx).Model(&models.Account{}).Where("phone = ?", phone).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check account %s: %w", phone, err)
	}
	return count > 0, nil
}

// Upsert creates or updates the record keyed by phone. Re-adding an existing
// identity updates the row in place; CreatedAt is preserved.
func (s *Store) Upsert(ctx context.Context, account *models.Account) error {
	if !models.IsValidStatus(account.Status) {
		return fmt.Errorf("refusing to persist unknown status %q for %s", account.Status, account.Phone)
	}

	plainHash := account.APIHash
	if err := s.concealCredentials(account); err != nil {
		return err
	}
	defer func() { account.APIHash = plainHash }()

	db := s.conn.WithContext(ctx)

	var existing models.Account
	err := db.Where("phone = ?", account.Phone).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.Create(account).Error; err != nil {
			return fmt.Errorf("failed to create account %s: %w", account.Phone, err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up account %s: %w", account.Phone, err)
	default:
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
		if err := db.Save(account).Error; err != nil {
			return fmt.Errorf("failed to update account %s: %w", account.Phone, err)
		}
	}
	s.logger.Debugf("Account %s persisted with status %s", account.Phone, account.Status)
	return nil
}

// UpdateStatus commits a lifecycle transition and appends the matching
// activity entry in one transaction.
func (s *Store) UpdateStatus(ctx context.Context, phone, action string, status models.AccountStatus, detail *string, lastChecked *time.Time) error {
	if !models.IsValidStatus(status) {
		return fmt.Errorf("refusing to persist unknown status %q for %s", status, phone)
	}
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"status": status}
		if detail != nil {
			updates["diagnostic_info"] = *detail
		}
		if lastChecked != nil {
			updates["last_checked_at"] = *lastChecked
		}
		res := tx.Model(&models.Account{}).Where("phone = ?", phone).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update status for %s: %w", phone, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		entry := models.ActivityLog{Phone: phone, Action: action, Status: status, Detail: detail}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("failed to append activity log for %s: %w", phone, err)
		}
		return nil
	})
}

// Delete removes the account and cascades its activity log.
func (s *Store) Delete(ctx context.Context, phone string) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("phone = ?", phone).Delete(&models.Account{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete account %s: %w", phone, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("phone = ?", phone).Delete(&models.ActivityLog{}).Error; err != nil {
			return fmt.Errorf("failed to cascade logs for %s: %w", phone, err)
		}
		return nil
	})
}

// List returns all accounts, newest first, optionally filtered by status.
func (s *Store) List(ctx context.Context, status models.AccountStatus) ([]models.Account, error) {
	db := s.conn.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var accounts []models.Account
	if err := db.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	for i := range accounts {
		if err := s.revealCredentials(&accounts[i]); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// CountByStatus tallies accounts per lifecycle state.
func (s *Store) CountByStatus(ctx context.Context) (map[models.AccountStatus]int64, error) {
	type row struct {
		Status models.AccountStatus
		N      int64
	}
	var rows []row
	err := s.conn.WithContext(ctx).Model(&models.Account{}).
		Select("status, count(*) as n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	counts := make(map[models.AccountStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// AppendLog writes one append-only activity entry.
func (s *Store) AppendLog(ctx context.Context, phone, action string, status models.AccountStatus, detail *string) error {
	entry := models.ActivityLog{Phone: phone, Action: action, Status: status, Detail: detail}
	if err := s.conn.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append activity log for %s: %w", phone, err)
	}
	return nil
}

// Logs returns up to limit entries for phone, most recent first.
func (s *Store) Logs(ctx context.Context, phone string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 {
		limit = 10
	}
	var entries []models.ActivityLog
	err := s.conn.WithContext(ctx).Where("phone = ?", phone).
		Order("id DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch logs for %s: %w", phone, err)
	}
	return entries, nil
}

// MarkUsed stamps LastUsedAt.
func (s *Store) MarkUsed(ctx context.Context, phone string) error {
	now := time.Now()
	res := s.conn.WithContext(ctx).Model(&models.Account{}).
		Where("phone = ?", phone).Update("last_used_at", now)
	if res.Error != nil {
		return fmt.Errorf("failed to mark account %s used: %w", phone, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProxy overwrites the stored outbound address descriptor.
func (s *Store) SetProxy(ctx context.Context, phone string, proxy *models.ProxyConfig) error {
	res := s.conn.WithContext(ctx).Model(&models.Account{}).
		Where("phone = ?", phone).Update("proxy_config", proxy)
	if res.Error != nil {
		return fmt.Errorf("failed to set proxy for %s: %w", phone, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) concealCredentials(account *models.Account) error {
	if s.crypto == nil || len(s.crypto.EncryptionKey) != 32 {
		return nil
	}
	if account.APIHash == "" || strings.HasPrefix(account.APIHash, encPrefix) {
		return nil
	}
	encrypted, err := s.crypto.EncryptData([]byte(account.APIHash))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials for %s: %w", account.Phone, err)
	}
	account.APIHash = encPrefix + encrypted
	return nil
}

func (s *Store) revealCredentials(account *models.Account) error {
	if !strings.HasPrefix(account.APIHash, encPrefix) {
		return nil
	}
	if s.crypto == nil || len(s.crypto.EncryptionKey) != 32 {
		return fmt.Errorf("account %s has encrypted credentials but no CREDENTIALS_ENC_KEY is configured", account.Phone)
	}
	plain, err := s.crypto.DecryptData(strings.TrimPrefix(account.APIHash, encPrefix))
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials for %s: %w", account.Phone, err)
	}
	account.APIHash = string(plain)
	return nil
}
