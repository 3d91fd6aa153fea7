// SPDX-License-Identifier: GPL-3.0-only

package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"accfleet-server/commons"
	"accfleet-server/models"
	"accfleet-server/store"

	"github.com/labstack/gommon/log"
)

// Manager quarantines broken session artifacts. An artifact is the durable
// proof-of-authentication for one identity; it is opaque here beyond
// archive and discard.
type Manager struct {
	dir    string
	store  *store.Store
	logger *log.Logger
}

func NewManager(s *store.Store, logger *log.Logger) *Manager {
	dir := commons.GetEnv("SESSIONS_DIR", "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Errorf("Failed to create sessions directory %s: %v", dir, err)
	}
	return &Manager{dir: dir, store: s, logger: logger}
}

// ArtifactPath returns the session artifact location for phone.
func (m *Manager) ArtifactPath(phone string) string {
	return filepath.Join(m.dir, phone+".session")
}

// Archive renames the artifact with a timestamp suffix so a corrupt file is
// never silently reused. Returns the backup path, or "" when no artifact
// exists.
func (m *Manager) Archive(phone string) (string, error) {
	path := m.ArtifactPath(phone)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}

	backup := filepath.Join(m.dir, fmt.Sprintf("%s_%s.session.bak", phone, time.Now().Format("20060102_150405")))
	if err := os.Rename(path, backup); err != nil {
		return "", fmt.Errorf("failed to archive session artifact for %s: %w", phone, err)
	}
	m.logger.Infof("Session file for %s backed up to %s", phone, backup)
	return backup, nil
}

// Discard removes the artifact. Missing artifacts are not an error.
func (m *Manager) Discard(phone string) error {
	path := m.ArtifactPath(phone)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to discard session artifact for %s: %w", phone, err)
	}
	m.logger.Infof("Session file for %s removed", phone)
	return nil
}

// Quarantine archives any existing artifact and marks the account for manual
// re-authentication. Calling it again when no artifact exists still commits
// the status change.
func (m *Manager) Quarantine(ctx context.Context, phone string) error {
	backup, err := m.Archive(phone)
	if err != nil {
		return err
	}

	detail := "needs relogin"
	if backup != "" {
		detail = "Session file backed up, needs relogin"
	}
	if err := m.store.UpdateStatus(ctx, phone, "quarantine", models.StatusRecoveryNeeded, &detail, nil); err != nil {
		return err
	}
	m.logger.Warnf("Account %s quarantined", phone)
	return nil
}
