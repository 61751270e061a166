package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alienxp03/rpgen/internal/core"
)

// DocumentPrefix and DocumentExt frame every dataset file name.
const (
	DocumentPrefix = "conversation_"
	DocumentExt    = ".json"
)

// ReadDocument loads a dataset document from disk.
func ReadDocument(path string) (*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", path, err)
	}
	if doc.ConversationPairs == nil {
		doc.ConversationPairs = []core.MessagePair{}
	}
	return &doc, nil
}

// ListDocuments returns the dataset files in dir, newest first. Backups and
// temp files are skipped.
func ListDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !IsDocumentName(name) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	// Names embed a sortable timestamp.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// IsDocumentName reports whether name looks like a dataset file.
func IsDocumentName(name string) bool {
	return strings.HasPrefix(name, DocumentPrefix) && strings.HasSuffix(name, DocumentExt) && filepath.Base(name) == name
}
