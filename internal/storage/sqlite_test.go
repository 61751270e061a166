package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
)

func TestSQLiteIndex(t *testing.T) {
	index, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "nested", IndexFilename))
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	defer index.Close()

	if err := index.Initialize(); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}

	now := time.Now()
	run := &core.RunRecord{
		ID:          "run-1",
		OutputPath:  "datasets/conversation_1.json",
		UserName:    "User",
		CharacterID: "char-123",
		Scenario:    "A quiet cafe",
		Status:      core.StatusInProgress,
		TotalTarget: 10,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.Run("CreateAndGetRun", func(t *testing.T) {
		if err := index.CreateRun(run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		got, err := index.GetRun(run.ID)
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got == nil {
			t.Fatal("run not found")
		}
		if got.OutputPath != run.OutputPath {
			t.Errorf("OutputPath mismatch: got %s, want %s", got.OutputPath, run.OutputPath)
		}
		if got.Status != core.StatusInProgress {
			t.Errorf("Status mismatch: got %s", got.Status)
		}
		if got.FinishedAt != nil {
			t.Error("FinishedAt should be nil")
		}
	})

	t.Run("GetUnknownRun", func(t *testing.T) {
		got, err := index.GetRun("missing")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil for unknown run")
		}
	})

	t.Run("UpdateRun", func(t *testing.T) {
		finished := time.Now()
		run.Status = core.StatusCompleted
		run.PairCount = 10
		run.FinishedAt = &finished

		if err := index.UpdateRun(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, _ := index.GetRun(run.ID)
		if got.Status != core.StatusCompleted {
			t.Errorf("Status not updated: %s", got.Status)
		}
		if got.PairCount != 10 {
			t.Errorf("PairCount not updated: %d", got.PairCount)
		}
		if got.FinishedAt == nil {
			t.Error("FinishedAt not set")
		}
	})

	t.Run("UpdateUnknownRun", func(t *testing.T) {
		if err := index.UpdateRun(&core.RunRecord{ID: "missing"}); err == nil {
			t.Error("expected error for unknown run")
		}
	})

	t.Run("ListRunsNewestFirst", func(t *testing.T) {
		later := &core.RunRecord{
			ID:          "run-2",
			OutputPath:  "datasets/conversation_2.json",
			UserName:    "User",
			CharacterID: "char-123",
			Scenario:    "A park",
			Status:      core.StatusInProgress,
			TotalTarget: 5,
			CreatedAt:   now.Add(time.Hour),
			UpdatedAt:   now.Add(time.Hour),
		}
		if err := index.CreateRun(later); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}

		runs, err := index.ListRuns(10, 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-2" {
			t.Errorf("expected newest run first, got %s", runs[0].ID)
		}
	})

	t.Run("DeleteRun", func(t *testing.T) {
		if err := index.DeleteRun("run-2"); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		got, _ := index.GetRun("run-2")
		if got != nil {
			t.Error("run still present after delete")
		}
	})
}

func TestDefaultIndexPath(t *testing.T) {
	if got := DefaultIndexPath(""); got != filepath.Join("datasets", IndexFilename) {
		t.Errorf("unexpected default path: %s", got)
	}
	if got := DefaultIndexPath("out"); got != filepath.Join("out", IndexFilename) {
		t.Errorf("unexpected path: %s", got)
	}
}
