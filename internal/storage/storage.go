// Package storage provides persistence for generation runs.
//
// A run is stored as a single JSON document written through FileStore,
// which never leaves a partially written file at the target path. The
// optional run index (SQLiteIndex) keeps a catalogue of runs next to the
// datasets; it never holds conversation content.
package storage

import (
	"fmt"

	"github.com/alienxp03/rpgen/internal/core"
)

// DocumentStore persists one logical document at a fixed path.
type DocumentStore interface {
	// Save writes the document crash-safely, rotating a backup of the
	// previously committed file.
	Save(doc any) error

	// WriteDirect writes the document straight to the target path without
	// the temp-file and backup steps.
	WriteDirect(doc any) error

	// Path returns the target path.
	Path() string
}

// RunIndex catalogues generation runs.
type RunIndex interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	CreateRun(run *core.RunRecord) error
	UpdateRun(run *core.RunRecord) error
	GetRun(id string) (*core.RunRecord, error)
	ListRuns(limit, offset int) ([]*core.RunRecord, error)
	DeleteRun(id string) error
}

// PersistError reports a failed save. The previously committed file is
// left untouched when it is returned.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.Path, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistError) Unwrap() error {
	return e.Err
}
