package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/storage"
)

// fakeStore records saves and can be told to fail.
type fakeStore struct {
	path        string
	saveErr     error
	directErr   error
	saves       []core.Document
	directSaves []core.Document
}

func (f *fakeStore) Save(doc any) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves = append(f.saves, doc.(*core.Document).Clone())
	return nil
}

func (f *fakeStore) WriteDirect(doc any) error {
	if f.directErr != nil {
		return f.directErr
	}
	f.directSaves = append(f.directSaves, doc.(*core.Document).Clone())
	return nil
}

func (f *fakeStore) Path() string { return f.path }

func newTestLedger(target int) (*Ledger, *fakeStore) {
	doc := core.NewDocument(core.NewDocumentConfig{
		UserName:      "User",
		CharacterName: "Aria",
		Scenario:      "A quiet cafe",
		TotalTarget:   target,
	}, time.Now())
	store := &fakeStore{path: "datasets/test.json"}
	return New(doc, store), store
}

func TestAppendPair(t *testing.T) {
	t.Run("AppendsInOrderAndPersistsEachTime", func(t *testing.T) {
		l, store := newTestLedger(3)

		for i, text := range []string{"one", "two", "three"} {
			if _, err := l.AppendPair(text, "reply "+text); err != nil {
				t.Fatalf("append %d failed: %v", i, err)
			}
			if len(store.saves) != i+1 {
				t.Fatalf("expected %d saves, got %d", i+1, len(store.saves))
			}
			saved := store.saves[i]
			if saved.Metadata.PairCount != i+1 {
				t.Errorf("saved pair_count = %d, want %d", saved.Metadata.PairCount, i+1)
			}
		}

		snap := l.Snapshot()
		for i, want := range []string{"one", "two", "three"} {
			if snap.ConversationPairs[i].UserText != want {
				t.Errorf("pair %d: got %q, want %q", i, snap.ConversationPairs[i].UserText, want)
			}
		}
		if l.Count() != 3 {
			t.Errorf("Count = %d", l.Count())
		}
	})

	t.Run("RejectsEmptyText", func(t *testing.T) {
		l, store := newTestLedger(3)

		cases := [][2]string{{"", "reply"}, {"hello", ""}, {"   ", "reply"}, {"hello", "\n\t"}}
		for _, c := range cases {
			if _, err := l.AppendPair(c[0], c[1]); !errors.Is(err, ErrEmptyText) {
				t.Errorf("AppendPair(%q, %q) = %v, want ErrEmptyText", c[0], c[1], err)
			}
		}
		if l.Count() != 0 || len(store.saves) != 0 {
			t.Error("empty pair must not be stored")
		}
	})

	t.Run("SetsTimestamp", func(t *testing.T) {
		l, _ := newTestLedger(1)
		l.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }

		pair, err := l.AppendPair("hi", "hello")
		if err != nil {
			t.Fatal(err)
		}
		if pair.CreatedAt != "2026-05-06 07:08:09" {
			t.Errorf("unexpected timestamp %q", pair.CreatedAt)
		}
	})

	t.Run("FallsBackToDirectWrite", func(t *testing.T) {
		l, store := newTestLedger(2)
		store.saveErr = errors.New("disk full")

		var warned error
		l.OnSaveWarning(func(err error) { warned = err })

		if _, err := l.AppendPair("hi", "hello"); err != nil {
			t.Fatalf("append should succeed via fallback: %v", err)
		}
		if len(store.directSaves) != 1 {
			t.Fatalf("expected 1 direct write, got %d", len(store.directSaves))
		}
		if warned == nil {
			t.Error("expected save warning")
		}
	})

	t.Run("BothWritesFail", func(t *testing.T) {
		l, store := newTestLedger(2)
		store.saveErr = errors.New("disk full")
		store.directErr = errors.New("still full")

		if _, err := l.AppendPair("hi", "hello"); err == nil {
			t.Fatal("expected error when both writes fail")
		}
		if l.Count() != 1 {
			t.Errorf("pair must stay in memory, count=%d", l.Count())
		}
	})
}

func TestFinalize(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		l, store := newTestLedger(5)
		l.AppendPair("a", "b")
		l.AppendPair("c", "d")

		first, err := l.Finalize(core.StatusInterrupted)
		if err != nil {
			t.Fatalf("finalize failed: %v", err)
		}
		before := l.Snapshot()

		second, err := l.Finalize(core.StatusCompleted)
		if err != nil {
			t.Fatalf("second finalize failed: %v", err)
		}
		after := l.Snapshot()

		if first != second {
			t.Errorf("summaries differ: %+v vs %+v", first, second)
		}
		if after.Metadata.PairCount != before.Metadata.PairCount {
			t.Error("pair_count changed on second finalize")
		}
		if len(after.ConversationPairs) != len(before.ConversationPairs) {
			t.Error("pairs changed on second finalize")
		}
		if after.Metadata.Status != core.StatusInterrupted {
			t.Errorf("status changed to %s", after.Metadata.Status)
		}
		if len(store.saves) != 4 {
			t.Errorf("expected 4 saves (2 appends + 2 finalize), got %d", len(store.saves))
		}
	})

	t.Run("Summary", func(t *testing.T) {
		l, _ := newTestLedger(2)
		l.AppendPair("a", "b")
		l.AppendPair("c", "d")

		summary, _ := l.Finalize(core.StatusCompleted)
		if !summary.Complete() {
			t.Error("expected complete summary")
		}
		if summary.Path != "datasets/test.json" {
			t.Errorf("unexpected path %s", summary.Path)
		}
	})

	t.Run("AppendAfterFinalize", func(t *testing.T) {
		l, _ := newTestLedger(2)
		l.Finalize(core.StatusFailed)

		if _, err := l.AppendPair("a", "b"); !errors.Is(err, ErrFinalized) {
			t.Errorf("expected ErrFinalized, got %v", err)
		}
	})
}

func TestRecent(t *testing.T) {
	l, _ := newTestLedger(10)
	for _, s := range []string{"1", "2", "3", "4", "5"} {
		l.AppendPair(s, s)
	}

	recent := l.Recent(3)
	if len(recent) != 3 || recent[0].UserText != "3" || recent[2].UserText != "5" {
		t.Errorf("unexpected recent pairs: %+v", recent)
	}

	recent[0].UserText = "changed"
	if l.Snapshot().ConversationPairs[2].UserText != "3" {
		t.Error("Recent must return a copy")
	}

	if got := l.Recent(50); len(got) != 5 {
		t.Errorf("expected all 5 pairs, got %d", len(got))
	}
	if got := l.Recent(0); got != nil {
		t.Errorf("expected nil for n=0, got %v", got)
	}
}

func TestLedgerWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversation.json")
	store, err := storage.NewFileStore(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	doc := core.NewDocument(core.NewDocumentConfig{UserName: "User", CharacterName: "Aria", TotalTarget: 4}, time.Now())
	l := New(doc, store)

	for i := 0; i < 4; i++ {
		if _, err := l.AppendPair("u", "c"); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var onDisk core.Document
		if err := json.Unmarshal(data, &onDisk); err != nil {
			t.Fatalf("corrupt document after append %d: %v", i, err)
		}
		if len(onDisk.ConversationPairs) != i+1 {
			t.Fatalf("after append %d: %d pairs on disk", i, len(onDisk.ConversationPairs))
		}
	}

	summary, err := l.Finalize(core.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if summary.PairCount != 4 {
		t.Errorf("summary pair count %d", summary.PairCount)
	}
}
