package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
)

func newTestDocument(pairs int) *core.Document {
	doc := core.NewDocument(core.NewDocumentConfig{
		UserName:      "User",
		CharacterName: "Aria",
		Scenario:      "A quiet cafe",
		TotalTarget:   10,
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	for i := 0; i < pairs; i++ {
		doc.ConversationPairs = append(doc.ConversationPairs, core.MessagePair{
			UserText:      "hello",
			CharacterText: "hi",
			CreatedAt:     "2026-01-02 03:04:05",
		})
	}
	doc.Metadata.PairCount = pairs
	return doc
}

func readDocument(t *testing.T, path string) *core.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("file %s is not a valid document: %v", path, err)
	}
	return &doc
}

func newTestStore(t *testing.T, maxBackups int) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "conversation_test.json"), maxBackups)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	store.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return store
}

// ageTarget gives the committed file a distinct, increasing modification time
// so backup ordering does not depend on filesystem timestamp resolution.
func ageTarget(t *testing.T, store *FileStore, step int) {
	t.Helper()
	mt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(step) * time.Minute)
	if err := os.Chtimes(store.Path(), mt, mt); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}

func TestFileStoreSave(t *testing.T) {
	t.Run("FirstSaveCreatesFileWithoutBackup", func(t *testing.T) {
		store := newTestStore(t, 5)

		if err := store.Save(newTestDocument(1)); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		doc := readDocument(t, store.Path())
		if doc.Metadata.PairCount != 1 || len(doc.ConversationPairs) != 1 {
			t.Errorf("unexpected document: pair_count=%d pairs=%d", doc.Metadata.PairCount, len(doc.ConversationPairs))
		}

		backups, err := store.Backups()
		if err != nil {
			t.Fatalf("failed to list backups: %v", err)
		}
		if len(backups) != 0 {
			t.Errorf("expected no backups, got %d", len(backups))
		}
		if _, err := os.Stat(store.Path() + tempSuffix); !os.IsNotExist(err) {
			t.Errorf("temp file left behind")
		}
	})

	t.Run("EachSaveLeavesCompleteDocument", func(t *testing.T) {
		store := newTestStore(t, 5)

		for m := 1; m <= 6; m++ {
			if err := store.Save(newTestDocument(m)); err != nil {
				t.Fatalf("save %d failed: %v", m, err)
			}
			doc := readDocument(t, store.Path())
			if len(doc.ConversationPairs) != m {
				t.Fatalf("after save %d: got %d pairs", m, len(doc.ConversationPairs))
			}
		}
	})

	t.Run("NonASCIIKeptVerbatim", func(t *testing.T) {
		store := newTestStore(t, 5)
		doc := newTestDocument(0)
		doc.Scenario = "カフェで <会話>"

		if err := store.Save(doc); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		data, _ := os.ReadFile(store.Path())
		if !json.Valid(data) {
			t.Fatal("invalid json")
		}
		if !strings.Contains(string(data), "カフェで <会話>") {
			t.Errorf("expected unescaped text in output, got %s", data)
		}
	})
}

func TestFileStoreBackupRotation(t *testing.T) {
	t.Run("ThreeSavesKeepTwoBackups", func(t *testing.T) {
		store := newTestStore(t, 2)

		for i := 1; i <= 3; i++ {
			if err := store.Save(newTestDocument(i)); err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
			ageTarget(t, store, i)
		}

		backups, _ := store.Backups()
		if len(backups) != 2 {
			t.Fatalf("expected 2 backups, got %d", len(backups))
		}

		// Backups hold the states committed before saves 2 and 3.
		got := map[int]bool{}
		for _, b := range backups {
			got[readDocument(t, b.Path).Metadata.PairCount] = true
		}
		if !got[1] || !got[2] {
			t.Errorf("expected backups of states 1 and 2, got %v", got)
		}
	})

	t.Run("OldestBackupEvicted", func(t *testing.T) {
		store := newTestStore(t, 2)

		for i := 1; i <= 4; i++ {
			if err := store.Save(newTestDocument(i)); err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
			ageTarget(t, store, i)
		}

		backups, _ := store.Backups()
		if len(backups) != 2 {
			t.Fatalf("expected 2 backups, got %d", len(backups))
		}

		got := map[int]bool{}
		for _, b := range backups {
			got[readDocument(t, b.Path).Metadata.PairCount] = true
		}
		if !got[2] || !got[3] {
			t.Errorf("expected backups of states 2 and 3, got %v", got)
		}
	})

	t.Run("BoundHoldsAfterManySaves", func(t *testing.T) {
		store := newTestStore(t, 3)

		for i := 1; i <= 12; i++ {
			if err := store.Save(newTestDocument(i)); err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
			ageTarget(t, store, i)
			backups, _ := store.Backups()
			if len(backups) > 3 {
				t.Fatalf("after save %d: %d backups exceed limit", i, len(backups))
			}
		}
	})

	t.Run("OtherTargetsUntouched", func(t *testing.T) {
		store := newTestStore(t, 1)
		foreign := filepath.Join(store.BackupDir(), "conversation_other.json.20250101_000000.bak")
		if err := os.WriteFile(foreign, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}

		for i := 1; i <= 4; i++ {
			if err := store.Save(newTestDocument(i)); err != nil {
				t.Fatalf("save %d failed: %v", i, err)
			}
			ageTarget(t, store, i)
		}

		if _, err := os.Stat(foreign); err != nil {
			t.Errorf("backup of another run was removed: %v", err)
		}
	})
}

func TestFileStoreSaveFailure(t *testing.T) {
	t.Run("EncodeErrorKeepsCommittedFile", func(t *testing.T) {
		store := newTestStore(t, 5)
		if err := store.Save(newTestDocument(2)); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		err := store.Save(map[string]any{"bad": make(chan int)})
		var perr *PersistError
		if !errors.As(err, &perr) {
			t.Fatalf("expected PersistError, got %v", err)
		}

		doc := readDocument(t, store.Path())
		if doc.Metadata.PairCount != 2 {
			t.Errorf("committed file changed: pair_count=%d", doc.Metadata.PairCount)
		}
		if _, err := os.Stat(store.Path() + tempSuffix); !os.IsNotExist(err) {
			t.Errorf("temp file left behind")
		}
	})

	t.Run("TempWriteErrorKeepsCommittedFile", func(t *testing.T) {
		store := newTestStore(t, 5)
		if err := store.Save(newTestDocument(1)); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		// A directory in the temp file's place makes the write fail.
		if err := os.Mkdir(store.Path()+tempSuffix, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(store.Path()+tempSuffix, "keep"), nil, 0644); err != nil {
			t.Fatal(err)
		}

		if err := store.Save(newTestDocument(5)); err == nil {
			t.Fatal("expected save to fail")
		}

		doc := readDocument(t, store.Path())
		if doc.Metadata.PairCount != 1 {
			t.Errorf("committed file changed: pair_count=%d", doc.Metadata.PairCount)
		}
	})
}

func TestFileStoreWriteDirect(t *testing.T) {
	store := newTestStore(t, 5)

	if err := store.WriteDirect(newTestDocument(3)); err != nil {
		t.Fatalf("direct write failed: %v", err)
	}
	if doc := readDocument(t, store.Path()); doc.Metadata.PairCount != 3 {
		t.Errorf("wrong pair_count: %d", doc.Metadata.PairCount)
	}
}

func TestNewFileStoreDefaults(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "out", "run.json"), 0)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if store.MaxBackups() != DefaultMaxBackups {
		t.Errorf("expected default max backups %d, got %d", DefaultMaxBackups, store.MaxBackups())
	}
	if info, err := os.Stat(store.BackupDir()); err != nil || !info.IsDir() {
		t.Errorf("backup directory not created: %v", err)
	}

	if _, err := NewFileStore("", 5); err == nil {
		t.Error("expected error for empty path")
	}
}
