package storage

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const backupTimestampLayout = "20060102_150405"

// BackupEntry describes one backup file.
type BackupEntry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// BackupName returns the backup filename for a target file at time t:
// <original-filename>.<YYYYMMDD_HHMMSS>.bak
func BackupName(target string, t time.Time) string {
	return fmt.Sprintf("%s.%s%s", filepath.Base(target), t.Format(backupTimestampLayout), BackupSuffix)
}

// PlanPrune returns the entries to delete so that at most max remain.
// Entries are ordered oldest first by modification time; ties fall back to
// the timestamp and collision counter embedded in the name.
func PlanPrune(entries []BackupEntry, max int) []BackupEntry {
	if max <= 0 {
		max = DefaultMaxBackups
	}
	if len(entries) <= max {
		return nil
	}

	sorted := make([]BackupEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].ModTime.Equal(sorted[j].ModTime) {
			return sorted[i].ModTime.Before(sorted[j].ModTime)
		}
		si, ni := backupStamp(sorted[i].Name)
		sj, nj := backupStamp(sorted[j].Name)
		if si != sj {
			return si < sj
		}
		return ni < nj
	})

	return sorted[:len(sorted)-max]
}

// backupStamp extracts "<timestamp>" and the optional "-N" collision counter
// from a backup filename.
func backupStamp(name string) (string, int) {
	stem := strings.TrimSuffix(name, BackupSuffix)
	idx := strings.LastIndex(stem, ".")
	if idx < 0 {
		return stem, 0
	}
	stamp := stem[idx+1:]
	if dash := strings.LastIndex(stamp, "-"); dash >= 0 {
		if n, err := strconv.Atoi(stamp[dash+1:]); err == nil {
			return stamp[:dash], n
		}
	}
	return stamp, 0
}

// Backups lists the backups that belong to this store's target file.
func (s *FileStore) Backups() ([]BackupEntry, error) {
	dirEntries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	prefix := filepath.Base(s.path) + "."
	var backups []BackupEntry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, BackupSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupEntry{
			Name:    name,
			Path:    filepath.Join(s.backupDir, name),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return backups, nil
}

// backup copies the committed target into the backup directory and prunes.
func (s *FileStore) backup() error {
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	dst := s.nextBackupPath()
	if err := copyFile(s.path, dst); err != nil {
		removeQuietly(dst)
		return fmt.Errorf("failed to copy backup: %w", err)
	}
	slog.Debug("Backup created", "path", dst)

	if err := s.prune(); err != nil {
		slog.Warn("Failed to prune old backups", "dir", s.backupDir, "error", err)
	}
	return nil
}

// nextBackupPath returns a backup path that does not exist yet.
func (s *FileStore) nextBackupPath() string {
	name := BackupName(s.path, s.now())
	path := filepath.Join(s.backupDir, name)
	stem := strings.TrimSuffix(name, BackupSuffix)
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(s.backupDir, fmt.Sprintf("%s-%d%s", stem, i, BackupSuffix))
	}
	return path
}

func (s *FileStore) prune() error {
	backups, err := s.Backups()
	if err != nil {
		return err
	}
	for _, b := range PlanPrune(backups, s.maxBackups) {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		slog.Debug("Old backup removed", "path", b.Path)
	}
	return nil
}

// copyFile copies src to dst and carries over the source modification time,
// so backup age reflects when the copied state was committed.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
