// SPDX-License-Identifier: GPL-3.0-only

package recovery

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"accfleet-server/commons"
)

// Backup copies the database file and every session artifact into a
// timestamped directory under BACKUP_DIR, then prunes old backups down to
// BACKUPS_KEEP. Only a file-backed database (sqlite) is copied; server
// dialects have their own backup tooling.
func (m *Manager) Backup() (string, error) {
	root := commons.GetEnv("BACKUP_DIR", "backup")
	dest := filepath.Join(root, time.Now().Format("20060102_150405"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", dest, err)
	}

	copied := 0
	dbPath := commons.GetEnv("DB_PATH", "accfleet.db")
	if _, err := os.Stat(dbPath); err == nil {
		if err := copyFile(dbPath, filepath.Join(dest, filepath.Base(dbPath))); err != nil {
			return "", err
		}
		copied++
	} else {
		m.logger.Debugf("No database file at %s, skipping database backup", dbPath)
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return "", fmt.Errorf("failed to read sessions directory %s: %w", m.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".session") {
			continue
		}
		src := filepath.Join(m.dir, entry.Name())
		if err := copyFile(src, filepath.Join(dest, entry.Name())); err != nil {
			return "", err
		}
		copied++
	}

	m.logger.Infof("Backup complete: %d files copied to %s", copied, dest)

	if pruned, err := m.PruneBackups(commons.GetEnvInt("BACKUPS_KEEP", 5)); err != nil {
		m.logger.Errorf("Failed to prune old backups: %v", err)
	} else if pruned > 0 {
		m.logger.Infof("Pruned %d old backups", pruned)
	}
	return dest, nil
}

// PruneBackups removes all but the keep most recent backup directories. The
// timestamped names sort chronologically.
func (m *Manager) PruneBackups(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	root := commons.GetEnv("BACKUP_DIR", "backup")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup directory %s: %w", root, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	if len(names) <= keep {
		return 0, nil
	}
	sort.Strings(names)

	pruned := 0
	for _, name := range names[:len(names)-keep] {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			return pruned, fmt.Errorf("failed to remove old backup %s: %w", name, err)
		}
		pruned++
	}
	return pruned, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
