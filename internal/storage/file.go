package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	// DefaultMaxBackups is used when no positive limit is configured.
	DefaultMaxBackups = 5

	// BackupDirName is the directory, next to the target, holding backups.
	BackupDirName = "backups"

	// BackupSuffix marks backup files.
	BackupSuffix = ".bak"

	tempSuffix = ".tmp"
)

// FileStore writes a JSON document to a single file with temp-file +
// rename semantics and keeps a bounded set of timestamped backups.
type FileStore struct {
	path       string
	backupDir  string
	maxBackups int
	now        func() time.Time
}

// NewFileStore creates a store for the given target path. The target's
// directory and its backups directory are created if missing.
func NewFileStore(path string, maxBackups int) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage: empty target path")
	}
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}

	backupDir := filepath.Join(filepath.Dir(path), BackupDirName)
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &FileStore{
		path:       path,
		backupDir:  backupDir,
		maxBackups: maxBackups,
		now:        time.Now,
	}, nil
}

// Path returns the target path.
func (s *FileStore) Path() string { return s.path }

// BackupDir returns the directory holding this store's backups.
func (s *FileStore) BackupDir() string { return s.backupDir }

// MaxBackups returns the configured backup limit.
func (s *FileStore) MaxBackups() int { return s.maxBackups }

// Save serializes doc to a temp file beside the target, backs up the
// currently committed file, and renames the temp file over the target.
// A failed backup is logged and does not stop the write.
func (s *FileStore) Save(doc any) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return &PersistError{Op: "encode", Path: s.path, Err: err}
	}

	tmp := s.path + tempSuffix
	if err := writeFileSync(tmp, data); err != nil {
		removeQuietly(tmp)
		return &PersistError{Op: "write temp file", Path: s.path, Err: err}
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := s.backup(); err != nil {
			slog.Warn("Failed to create backup", "path", s.path, "error", err)
		}
	}

	if err := replaceFile(tmp, s.path); err != nil {
		removeQuietly(tmp)
		return &PersistError{Op: "commit", Path: s.path, Err: err}
	}

	syncDir(filepath.Dir(s.path))
	slog.Debug("Document saved", "path", s.path, "bytes", len(data))
	return nil
}

// WriteDirect writes doc straight to the target path. It is the fallback
// when Save fails and offers no protection against a torn write.
func (s *FileStore) WriteDirect(doc any) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return &PersistError{Op: "encode", Path: s.path, Err: err}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return &PersistError{Op: "direct write", Path: s.path, Err: err}
	}
	return nil
}

func encodeDocument(doc any) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// replaceFile renames src over dst. Windows refuses to rename onto an
// existing file, so there the target is removed first.
func replaceFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || runtime.GOOS != "windows" {
		return err
	}
	if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) {
		return err
	}
	return os.Rename(src, dst)
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove temp file", "path", path, "error", err)
	}
}
