// Package handlers provides the HTTP handlers of the dataset browser.
package handlers

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/export"
	"github.com/alienxp03/rpgen/internal/persona"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/internal/storage"
	"github.com/alienxp03/rpgen/internal/style"
)

const (
	defaultListLimit    = 50
	defaultPollInterval = time.Second
)

// Options configures a Handler.
type Options struct {
	// OutputDir is the dataset directory to browse.
	OutputDir string

	// Index is optional. Without it runs are discovered from the files.
	Index storage.RunIndex

	// Completer is probed by the health endpoint when set. Backend names
	// the backend and model it was built from.
	Completer provider.Completer
	Backend   core.BackendSpec

	// CharacterAI is probed by the health endpoint when set.
	CharacterAI CharacterCheck

	// HealthCachePath overrides where health results are kept.
	HealthCachePath string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	outputDir    string
	index        storage.RunIndex
	completer    provider.Completer
	backend      core.BackendSpec
	characterAI  CharacterCheck
	health       *healthStore
	templates    *template.Template
	pollInterval time.Duration
}

// RunSummary is the list view of one run.
type RunSummary struct {
	ID          string         `json:"id"`
	File        string         `json:"file"`
	User        string         `json:"user"`
	Character   string         `json:"character"`
	Scenario    string         `json:"scenario"`
	Status      core.RunStatus `json:"status"`
	PairCount   int            `json:"pair_count"`
	TotalTarget int            `json:"total_target"`
	Date        string         `json:"date"`
}

// New creates a new Handler.
func New(opts Options) *Handler {
	path := opts.HealthCachePath
	if path == "" {
		path = defaultHealthPath()
	}
	backend := opts.Backend
	if backend.Backend == "" && opts.Completer != nil {
		backend.Backend = opts.Completer.Name()
	}
	return &Handler{
		outputDir:    opts.OutputDir,
		index:        opts.Index,
		completer:    opts.Completer,
		backend:      backend,
		characterAI:  opts.CharacterAI,
		health:       newHealthStore(path, healthTTL),
		templates:    parseTemplates(),
		pollInterval: defaultPollInterval,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", h.handleAPIListRuns)
		r.Get("/runs/{id}", h.handleAPIGetRun)
		r.Get("/runs/{id}/stream", h.handleRunStream)
		r.Get("/runs/{id}/export/{format}", h.handleExportRun)
		r.Get("/personas", h.handleAPIListPersonas)
		r.Get("/styles", h.handleAPIListStyles)
		r.Get("/backend/health", h.handleAPIBackendHealth)
	})

	r.Get("/", h.handleIndex)
	r.Get("/runs/{id}", h.handleRunView)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
	})
}

// API handlers

func (h *Handler) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	runs, err := h.listRuns(limit, offset)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.json(w, runs)
}

func (h *Handler) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	doc, path, err := h.findRun(chi.URLParam(r, "id"))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		h.jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	h.json(w, map[string]any{
		"file":     filepath.Base(path),
		"document": doc,
	})
}

func (h *Handler) handleExportRun(w http.ResponseWriter, r *http.Request) {
	format := chi.URLParam(r, "format")

	doc, path, err := h.findRun(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}

	exporter, err := export.GetExporter(export.Format(format))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	filename := export.GenerateFilename(path, exporter.FileExtension())
	w.Header().Set("Content-Type", contentType(exporter.FileExtension()))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")

	if err := exporter.Export(doc, w); err != nil {
		slog.Error("Export failed", "run", doc.Metadata.RunID, "format", format, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func contentType(ext string) string {
	switch {
	case ext == "pdf":
		return "application/pdf"
	case ext == "md":
		return "text/markdown; charset=utf-8"
	case ext == "jsonl":
		return "application/x-ndjson"
	case strings.HasSuffix(ext, "json"):
		return "application/json"
	}
	return "application/octet-stream"
}

func (h *Handler) handleAPIListPersonas(w http.ResponseWriter, r *http.Request) {
	h.json(w, persona.DefaultPersonas())
}

func (h *Handler) handleAPIListStyles(w http.ResponseWriter, r *http.Request) {
	type styleInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []styleInfo
	for _, s := range style.DefaultStyles() {
		out = append(out, styleInfo{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	h.json(w, out)
}

// healthReport is one collaborator's entry in the health response.
type healthReport struct {
	Backend string                `json:"backend,omitempty"`
	Model   string                `json:"model,omitempty"`
	Cached  bool                  `json:"cached"`
	Status  provider.HealthStatus `json:"status"`
}

func (h *Handler) handleAPIBackendHealth(w http.ResponseWriter, r *http.Request) {
	if h.completer == nil && h.characterAI == nil {
		h.jsonError(w, "no backend configured", http.StatusNotFound)
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	out := map[string]healthReport{}
	if h.completer != nil {
		check := func(ctx context.Context) provider.HealthStatus { return provider.Check(ctx, h.completer) }
		st, cached := h.health.probe(r.Context(), completionKey(h.backend), refresh, check)
		out["completion"] = healthReport{Backend: h.backend.Backend, Model: h.backend.Model, Cached: cached, Status: st}
	}
	if h.characterAI != nil {
		st, cached := h.health.probe(r.Context(), characterAIKey, refresh, checkCharacterAI(h.characterAI))
		out["character_ai"] = healthReport{Cached: cached, Status: st}
	}
	h.json(w, out)
}

// Lookup

// listRuns prefers the run index and falls back to scanning the dataset
// directory.
func (h *Handler) listRuns(limit, offset int) ([]RunSummary, error) {
	out := []RunSummary{}
	if h.index != nil {
		records, err := h.index.ListRuns(limit, offset)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			out = append(out, RunSummary{
				ID:          rec.ID,
				File:        filepath.Base(rec.OutputPath),
				User:        rec.UserName,
				Character:   rec.CharacterID,
				Scenario:    rec.Scenario,
				Status:      rec.Status,
				PairCount:   rec.PairCount,
				TotalTarget: rec.TotalTarget,
				Date:        rec.CreatedAt.Format(core.TimestampLayout),
			})
		}
		return out, nil
	}

	paths, err := storage.ListDocuments(h.outputDir)
	if err != nil {
		return nil, err
	}
	if offset >= len(paths) {
		return out, nil
	}
	paths = paths[offset:]
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	for _, p := range paths {
		doc, err := storage.ReadDocument(p)
		if err != nil {
			slog.Warn("Skipping unreadable dataset file", "path", p, "error", err)
			continue
		}
		out = append(out, summarize(doc, p))
	}
	return out, nil
}

// findRun resolves id as a run id or a dataset file name. It returns a nil
// document when nothing matches.
func (h *Handler) findRun(id string) (*core.Document, string, error) {
	if id == "" {
		return nil, "", nil
	}
	if h.index != nil {
		rec, err := h.index.GetRun(id)
		if err != nil {
			return nil, "", err
		}
		if rec != nil && rec.OutputPath != "" {
			doc, err := storage.ReadDocument(rec.OutputPath)
			if err == nil {
				return doc, rec.OutputPath, nil
			}
			slog.Warn("Indexed dataset file unreadable", "run", id, "path", rec.OutputPath, "error", err)
		}
	}

	paths, err := storage.ListDocuments(h.outputDir)
	if err != nil {
		return nil, "", err
	}
	for _, p := range paths {
		base := filepath.Base(p)
		if base == id || strings.TrimSuffix(base, storage.DocumentExt) == id {
			doc, err := storage.ReadDocument(p)
			return doc, p, err
		}
	}
	for _, p := range paths {
		doc, err := storage.ReadDocument(p)
		if err != nil {
			continue
		}
		if doc.Metadata.RunID == id {
			return doc, p, nil
		}
	}
	return nil, "", nil
}

func summarize(doc *core.Document, path string) RunSummary {
	m := doc.Metadata
	return RunSummary{
		ID:          m.RunID,
		File:        filepath.Base(path),
		User:        m.Characters.User,
		Character:   m.Characters.Character,
		Scenario:    m.Scenario,
		Status:      m.Status,
		PairCount:   len(doc.ConversationPairs),
		TotalTarget: m.TotalTarget,
		Date:        m.Date,
	}
}

// Helpers

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (h *Handler) json(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
