package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alienxp03/rpgen/internal/storage"
)

const streamTimeout = 2 * time.Hour

// handleRunStream follows a dataset file with Server-Sent Events: one
// "pair" event per message pair, then "run_complete" once the run reaches a
// terminal status. The file is polled because the generator and the browser
// are separate processes.
func (h *Handler) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slog.Debug("New run stream connection", "id", id, "remote_addr", r.RemoteAddr)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	doc, path, err := h.findRun(id)
	if err != nil {
		slog.Error("Failed to get run for stream", "id", id, "error", err)
		h.sendSSEError(w, flusher, "Failed to get run")
		return
	}
	if doc == nil {
		h.sendSSEError(w, flusher, "Run not found")
		return
	}

	sent := 0
	for ; sent < len(doc.ConversationPairs); sent++ {
		h.sendSSEEvent(w, flusher, "pair", doc.ConversationPairs[sent])
	}
	if doc.Metadata.Status.IsTerminal() {
		h.sendSSEEvent(w, flusher, "run_complete", doc.Metadata)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), streamTimeout)
	defer cancel()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stream context done", "id", id)
			return
		case <-ticker.C:
			updated, err := storage.ReadDocument(path)
			if err != nil {
				// The generator may be mid-rename; try again next tick.
				slog.Debug("Stream read failed", "path", path, "error", err)
				continue
			}

			for ; sent < len(updated.ConversationPairs); sent++ {
				h.sendSSEEvent(w, flusher, "pair", updated.ConversationPairs[sent])
			}

			if updated.Metadata.Status.IsTerminal() {
				h.sendSSEEvent(w, flusher, "run_complete", updated.Metadata)
				return
			}
		}
	}
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		slog.Debug("Failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, "error", map[string]string{"message": message})
}
