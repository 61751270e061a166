package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/export"
)

const pageTemplates = `
{{define "layout-head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.}} - rpgen</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; color: #222; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #ddd; }
.status { padding: .1rem .5rem; border-radius: .6rem; font-size: .85em; }
.completed { background: #d1fadf; } .in_progress { background: #dbeafe; }
.interrupted { background: #fef3c7; } .failed { background: #fee2e2; }
.msg { margin: .6rem 0; padding: .6rem .8rem; border-radius: .5rem; }
.user { background: #eef4ff; } .character { background: #f0fdf4; }
.meta { color: #666; font-size: .9em; }
</style>
</head>
<body>
{{end}}

{{define "index.html"}}{{template "layout-head" "Datasets"}}
<h1>Datasets</h1>
{{if .Runs}}
<table>
<tr><th>Date</th><th>Speakers</th><th>Pairs</th><th>Status</th><th></th></tr>
{{range .Runs}}
<tr>
<td>{{.Date}}</td>
<td>{{.User}} &amp; {{.Character}}</td>
<td>{{.PairCount}} / {{.TotalTarget}}</td>
<td><span class="status {{.Status}}">{{statusLabel .Status}}</span></td>
<td><a href="/runs/{{.ID}}">view</a></td>
</tr>
{{end}}
</table>
{{else}}
<p class="meta">No conversations in {{.OutputDir}} yet.</p>
{{end}}
</body></html>
{{end}}

{{define "run.html"}}{{template "layout-head" .File}}
<p><a href="/">&larr; all datasets</a></p>
<h1>{{.Doc.Metadata.Characters.User}} &amp; {{.Doc.Metadata.Characters.Character}}</h1>
<p class="meta">{{.Doc.Metadata.Date}} &middot; {{len .Doc.ConversationPairs}} / {{.Doc.Metadata.TotalTarget}} pairs &middot;
<span class="status {{.Doc.Metadata.Status}}">{{statusLabel .Doc.Metadata.Status}}</span></p>
{{with .Doc.Scenario}}<p><em>{{.}}</em></p>{{end}}
<p class="meta">Export:{{range .Formats}} <a href="/api/runs/{{$.ID}}/export/{{.}}">{{.}}</a>{{end}}</p>
{{range .Doc.ConversationPairs}}
<div class="msg user"><strong>{{$.Doc.Metadata.Characters.User}}:</strong> {{nl2br .UserText}}</div>
<div class="msg character"><strong>{{$.Doc.Metadata.Characters.Character}}:</strong> {{nl2br .CharacterText}}</div>
{{else}}
<p class="meta">No messages recorded.</p>
{{end}}
</body></html>
{{end}}
`

func parseTemplates() *template.Template {
	funcMap := template.FuncMap{
		"statusLabel": func(s core.RunStatus) string {
			return strings.ReplaceAll(string(s), "_", " ")
		},
		"nl2br": func(s string) template.HTML {
			escaped := template.HTMLEscapeString(s)
			return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
		},
	}
	return template.Must(template.New("").Funcs(funcMap).Parse(pageTemplates))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	runs, err := h.listRuns(defaultListLimit, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.render(w, "index.html", map[string]interface{}{
		"Runs":      runs,
		"OutputDir": h.outputDir,
	})
}

func (h *Handler) handleRunView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, path, err := h.findRun(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.NotFound(w, r)
		return
	}
	h.render(w, "run.html", map[string]interface{}{
		"ID":      id,
		"File":    filepath.Base(path),
		"Doc":     doc,
		"Formats": export.Formats(),
	})
}

func (h *Handler) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("Template error", "template", name, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
