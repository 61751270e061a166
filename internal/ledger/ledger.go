// Package ledger owns the in-memory dataset document of a run and writes
// it through to durable storage after every mutation.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/storage"
)

var (
	// ErrEmptyText is returned when either side of a pair is blank.
	ErrEmptyText = errors.New("message pair text must not be empty")

	// ErrFinalized is returned when appending after Finalize.
	ErrFinalized = errors.New("ledger already finalized")
)

// Summary reports the outcome of a run.
type Summary struct {
	RunID     string
	PairCount int
	Target    int
	Path      string
	Status    core.RunStatus
}

// Complete reports whether the target pair count was reached.
func (s Summary) Complete() bool {
	return s.PairCount >= s.Target
}

// Ledger accumulates message pairs for one run. It is not safe for
// concurrent use; a run has exactly one producer.
type Ledger struct {
	doc       *core.Document
	store     storage.DocumentStore
	now       func() time.Time
	onWarning func(error)

	finalized bool
	summary   Summary
}

// New creates a ledger over doc, persisting through store.
func New(doc *core.Document, store storage.DocumentStore) *Ledger {
	if doc.ConversationPairs == nil {
		doc.ConversationPairs = []core.MessagePair{}
	}
	return &Ledger{
		doc:   doc,
		store: store,
		now:   time.Now,
	}
}

// OnSaveWarning registers a callback for saves that had to fall back to an
// unguarded direct write.
func (l *Ledger) OnSaveWarning(fn func(error)) {
	l.onWarning = fn
}

// AppendPair records one completed exchange and persists the document
// before returning.
func (l *Ledger) AppendPair(userText, characterText string) (core.MessagePair, error) {
	if l.finalized {
		return core.MessagePair{}, ErrFinalized
	}
	if strings.TrimSpace(userText) == "" || strings.TrimSpace(characterText) == "" {
		return core.MessagePair{}, ErrEmptyText
	}

	pair := core.MessagePair{
		UserText:      userText,
		CharacterText: characterText,
		CreatedAt:     l.now().Format(core.TimestampLayout),
	}
	l.doc.ConversationPairs = append(l.doc.ConversationPairs, pair)
	l.doc.Metadata.PairCount++

	if err := l.Persist(); err != nil {
		return pair, err
	}
	return pair, nil
}

// Persist saves the current document. If the guarded save fails it falls
// back to a direct write so collected pairs are not lost.
func (l *Ledger) Persist() error {
	err := l.store.Save(l.doc)
	if err == nil {
		slog.Debug("Progress saved", "pairs", l.doc.Metadata.PairCount, "target", l.doc.Metadata.TotalTarget)
		return nil
	}

	slog.Warn("Safe save failed, falling back to direct write", "path", l.store.Path(), "error", err)
	if l.onWarning != nil {
		l.onWarning(err)
	}

	if directErr := l.store.WriteDirect(l.doc); directErr != nil {
		slog.Error("Direct write failed", "path", l.store.Path(), "error", directErr)
		return fmt.Errorf("failed to persist document: %w", errors.Join(err, directErr))
	}
	return nil
}

// Finalize records the final status, persists and returns the run summary.
// Repeated calls only re-persist; counts, pairs and status keep the values
// from the first call.
func (l *Ledger) Finalize(status core.RunStatus) (Summary, error) {
	if !l.finalized {
		l.finalized = true
		l.doc.Metadata.Status = status
		l.summary = Summary{
			RunID:     l.doc.Metadata.RunID,
			PairCount: l.doc.Metadata.PairCount,
			Target:    l.doc.Metadata.TotalTarget,
			Path:      l.store.Path(),
			Status:    status,
		}
	}

	err := l.Persist()
	return l.summary, err
}

// Finalized reports whether Finalize has been called.
func (l *Ledger) Finalized() bool { return l.finalized }

// Count returns the number of stored pairs.
func (l *Ledger) Count() int { return l.doc.Metadata.PairCount }

// Target returns the number of pairs the run aims for.
func (l *Ledger) Target() int { return l.doc.Metadata.TotalTarget }

// Path returns where the document is persisted.
func (l *Ledger) Path() string { return l.store.Path() }

// RunID returns the run identifier.
func (l *Ledger) RunID() string { return l.doc.Metadata.RunID }

// Recent returns a copy of the last n pairs in conversation order.
func (l *Ledger) Recent(n int) []core.MessagePair {
	pairs := l.doc.ConversationPairs
	if n <= 0 || len(pairs) == 0 {
		return nil
	}
	if n > len(pairs) {
		n = len(pairs)
	}
	out := make([]core.MessagePair, n)
	copy(out, pairs[len(pairs)-n:])
	return out
}

// Snapshot returns a deep copy of the document.
func (l *Ledger) Snapshot() core.Document {
	return l.doc.Clone()
}
