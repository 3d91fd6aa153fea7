package recovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"accfleet-server/commons"
	"accfleet-server/crypto"
	"accfleet-server/models"
	"accfleet-server/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	t.Setenv("SESSIONS_DIR", t.TempDir())

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := conn.AutoMigrate(models.AllModels...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	s := store.New(conn, crypto.NewCrypto(), commons.NewLogger("recovery-test"))
	return NewManager(s, commons.NewLogger("recovery-test")), s
}

func writeArtifact(t *testing.T, m *Manager, phone string) string {
	t.Helper()
	path := m.ArtifactPath(phone)
	if err := os.WriteFile(path, []byte("session-bytes"), 0o644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}
	return path
}

func TestArchiveRenamesArtifact(t *testing.T) {
	m, _ := setupManager(t)
	path := writeArtifact(t, m, "+628123456789")

	backup, err := m.Archive("+628123456789")
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if backup == "" {
		t.Fatal("Expected a backup path")
	}
	if !strings.HasSuffix(backup, ".session.bak") {
		t.Errorf("Expected .session.bak suffix, got %s", backup)
	}
	if !strings.HasPrefix(filepath.Base(backup), "+628123456789_") {
		t.Errorf("Expected timestamped backup name, got %s", filepath.Base(backup))
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Original artifact should be gone after archiving")
	}
	if _, err := os.Stat(backup); err != nil {
		t.Errorf("Backup should exist: %v", err)
	}
}

func TestArchiveWithoutArtifact(t *testing.T) {
	m, _ := setupManager(t)

	backup, err := m.Archive("+628123456789")
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if backup != "" {
		t.Errorf("Expected empty backup path when no artifact exists, got %s", backup)
	}
}

func TestDiscard(t *testing.T) {
	m, _ := setupManager(t)
	path := writeArtifact(t, m, "+628123456789")

	if err := m.Discard("+628123456789"); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Artifact should be removed")
	}

	// Discarding again is not an error.
	if err := m.Discard("+628123456789"); err != nil {
		t.Errorf("Second discard should be a no-op, got %v", err)
	}
}

func TestQuarantine(t *testing.T) {
	m, s := setupManager(t)
	ctx := context.Background()

	account := &models.Account{Phone: "+628123456789", APIID: 1, APIHash: "h", Status: models.StatusExpired}
	if err := s.Upsert(ctx, account); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	writeArtifact(t, m, "+628123456789")

	if err := m.Quarantine(ctx, "+628123456789"); err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	got, err := s.Get(ctx, "+628123456789")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusRecoveryNeeded {
		t.Errorf("Expected recovery_needed, got %s", got.Status)
	}

	// Idempotent: no artifact left, still commits the status change.
	if err := s.UpdateStatus(ctx, "+628123456789", "check", models.StatusExpired, nil, nil); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := m.Quarantine(ctx, "+628123456789"); err != nil {
		t.Fatalf("Second quarantine failed: %v", err)
	}
	got, err = s.Get(ctx, "+628123456789")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusRecoveryNeeded {
		t.Errorf("Expected recovery_needed after second quarantine, got %s", got.Status)
	}
}
