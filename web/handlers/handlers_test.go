package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/storage"
)

// writeRun saves a document with n pairs into dir and returns it with its
// path.
func writeRun(t *testing.T, dir string, started time.Time, n int, status core.RunStatus) (*core.Document, string) {
	t.Helper()
	doc := core.NewDocument(core.NewDocumentConfig{
		UserName:      "Sam",
		CharacterName: "Aria",
		CharacterID:   "char-1",
		Scenario:      "A quiet cafe",
		TotalTarget:   5,
	}, started)
	for i := 0; i < n; i++ {
		doc.ConversationPairs = append(doc.ConversationPairs, core.MessagePair{
			UserText:      "hello <b>there</b>",
			CharacterText: "hi\nfriend",
			CreatedAt:     started.Format(core.TimestampLayout),
		})
	}
	doc.Metadata.PairCount = n
	doc.Metadata.Status = status

	path := filepath.Join(dir, core.RunFilename(started))
	store, err := storage.NewFileStore(path, 2)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Save(doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	return doc, path
}

func setupTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	h := New(Options{OutputDir: dir, HealthCachePath: filepath.Join(t.TempDir(), "health.json")})
	return h, dir
}

func serve(h *Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandleAPIListRuns_FromFiles(t *testing.T) {
	h, dir := setupTestHandler(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	writeRun(t, dir, base, 2, core.StatusCompleted)
	newer, _ := writeRun(t, dir, base.Add(time.Hour), 1, core.StatusInterrupted)

	w := serve(h, "GET", "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var runs []RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != newer.Metadata.RunID || runs[0].Status != core.StatusInterrupted {
		t.Errorf("expected newest run first, got %+v", runs[0])
	}

	w = serve(h, "GET", "/api/runs?limit=1&offset=1")
	runs = nil
	json.Unmarshal(w.Body.Bytes(), &runs)
	if len(runs) != 1 || runs[0].PairCount != 2 {
		t.Errorf("pagination returned %+v", runs)
	}
}

func TestHandleAPIListRuns_FromIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := storage.NewSQLiteIndex(storage.DefaultIndexPath(dir))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := idx.Initialize(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer idx.Close()

	doc, path := writeRun(t, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 3, core.StatusCompleted)
	now := time.Now()
	if err := idx.CreateRun(&core.RunRecord{
		ID:          doc.Metadata.RunID,
		OutputPath:  path,
		UserName:    "Sam",
		CharacterID: "char-1",
		Status:      core.StatusCompleted,
		PairCount:   3,
		TotalTarget: 5,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		t.Fatalf("create run: %v", err)
	}

	h := New(Options{OutputDir: dir, Index: idx, HealthCachePath: filepath.Join(t.TempDir(), "h.json")})

	w := serve(h, "GET", "/api/runs")
	var runs []RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if len(runs) != 1 || runs[0].File != filepath.Base(path) {
		t.Fatalf("unexpected runs %+v", runs)
	}

	w = serve(h, "GET", "/api/runs/"+doc.Metadata.RunID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHandleAPIGetRun(t *testing.T) {
	h, dir := setupTestHandler(t)
	doc, path := writeRun(t, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 2, core.StatusCompleted)

	for _, id := range []string{doc.Metadata.RunID, filepath.Base(path), strings.TrimSuffix(filepath.Base(path), ".json")} {
		w := serve(h, "GET", "/api/runs/"+id)
		if w.Code != http.StatusOK {
			t.Fatalf("lookup %q: expected 200, got %d", id, w.Code)
		}
		var payload struct {
			File     string        `json:"file"`
			Document core.Document `json:"document"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("bad response: %v", err)
		}
		if len(payload.Document.ConversationPairs) != 2 {
			t.Errorf("expected 2 pairs, got %d", len(payload.Document.ConversationPairs))
		}
	}

	if w := serve(h, "GET", "/api/runs/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleExportRun(t *testing.T) {
	h, dir := setupTestHandler(t)
	doc, _ := writeRun(t, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 2, core.StatusCompleted)

	tests := []struct {
		format      string
		contentType string
		status      int
	}{
		{"jsonl", "application/x-ndjson", http.StatusOK},
		{"sharegpt", "application/json", http.StatusOK},
		{"markdown", "text/markdown; charset=utf-8", http.StatusOK},
		{"pdf", "application/pdf", http.StatusOK},
		{"docx", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := serve(h, "GET", "/api/runs/"+doc.Metadata.RunID+"/export/"+tt.format)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			if got := w.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("content type = %q, want %q", got, tt.contentType)
			}
			if !strings.Contains(w.Header().Get("Content-Disposition"), "conversation_20260102_030405") {
				t.Errorf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
			}
		})
	}
}

func TestHandleRunStream_CompletedRun(t *testing.T) {
	h, dir := setupTestHandler(t)
	doc, _ := writeRun(t, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 2, core.StatusCompleted)

	w := serve(h, "GET", "/api/runs/"+doc.Metadata.RunID+"/stream")
	body := w.Body.String()
	if n := strings.Count(body, "event: pair"); n != 2 {
		t.Errorf("expected 2 pair events, got %d", n)
	}
	if !strings.Contains(body, "event: run_complete") {
		t.Error("expected run_complete event")
	}
}

func TestHandleRunStream_FollowsFile(t *testing.T) {
	h, dir := setupTestHandler(t)
	h.pollInterval = 10 * time.Millisecond
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	doc, _ := writeRun(t, dir, started, 1, core.StatusInProgress)

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- serve(h, "GET", "/api/runs/"+doc.Metadata.RunID+"/stream")
	}()

	time.Sleep(50 * time.Millisecond)
	// Rewrite the same file as the generator would on completion.
	doc.ConversationPairs = append(doc.ConversationPairs, core.MessagePair{UserText: "bye", CharacterText: "farewell"})
	doc.Metadata.PairCount = 2
	doc.Metadata.Status = core.StatusCompleted
	store, err := storage.NewFileStore(filepath.Join(dir, core.RunFilename(started)), 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(doc); err != nil {
		t.Fatal(err)
	}

	select {
	case w := <-done:
		body := w.Body.String()
		if n := strings.Count(body, "event: pair"); n != 2 {
			t.Errorf("expected 2 pair events, got %d", n)
		}
		if !strings.Contains(body, "farewell") || !strings.Contains(body, "event: run_complete") {
			t.Errorf("stream missed the update: %s", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestHandleRunStream_NotFound(t *testing.T) {
	h, _ := setupTestHandler(t)
	w := serve(h, "GET", "/api/runs/missing/stream")
	if !strings.Contains(w.Body.String(), "event: error") {
		t.Errorf("expected error event, got %q", w.Body.String())
	}
}

func TestPages(t *testing.T) {
	h, dir := setupTestHandler(t)

	w := serve(h, "GET", "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "No conversations") {
		t.Fatalf("empty index: %d %s", w.Code, w.Body.String())
	}

	doc, _ := writeRun(t, dir, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), 1, core.StatusCompleted)

	w = serve(h, "GET", "/")
	if !strings.Contains(w.Body.String(), "/runs/"+doc.Metadata.RunID) {
		t.Errorf("index does not link the run")
	}

	w = serve(h, "GET", "/runs/"+doc.Metadata.RunID)
	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Fatalf("run page: %d", w.Code)
	}
	if strings.Contains(body, "<b>there</b>") {
		t.Error("message text must be escaped")
	}
	if !strings.Contains(body, "hi<br>friend") {
		t.Error("newlines should render as line breaks")
	}

	if w := serve(h, "GET", "/runs/nope"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleAPIListPersonasAndStyles(t *testing.T) {
	h, _ := setupTestHandler(t)
	for _, path := range []string{"/api/personas", "/api/styles"} {
		w := serve(h, "GET", path)
		var items []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if len(items) == 0 {
			t.Errorf("%s returned nothing", path)
		}
	}
}
