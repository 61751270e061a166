package core

import (
	"fmt"
	"strings"
)

// BackendSpec selects a text-completion backend and, optionally, a model.
type BackendSpec struct {
	Backend string
	Model   string
}

// String renders the spec back to its flag form.
func (b BackendSpec) String() string {
	if b.Model == "" {
		return b.Backend
	}
	return b.Backend + "/" + b.Model
}

// ParseBackendSpec parses a backend specification string.
// Format: backend[/model]
//
// Examples:
//   - "gemini" -> {Backend: "gemini", Model: ""}
//   - "gemini/gemini-2.5-flash" -> {Backend: "gemini", Model: "gemini-2.5-flash"}
//   - "claude/sonnet" -> {Backend: "claude", Model: "sonnet"}
//   - "mock" -> {Backend: "mock", Model: ""}
func ParseBackendSpec(spec string) (BackendSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return BackendSpec{}, fmt.Errorf("backend spec cannot be empty")
	}

	var b BackendSpec
	parts := strings.SplitN(spec, "/", 2)
	b.Backend = strings.ToLower(strings.TrimSpace(parts[0]))
	if b.Backend == "" {
		return BackendSpec{}, fmt.Errorf("backend cannot be empty in spec: %s", spec)
	}
	if len(parts) == 2 {
		b.Model = strings.TrimSpace(parts[1])
		if b.Model == "" {
			return BackendSpec{}, fmt.Errorf("model cannot be empty in spec: %s", spec)
		}
	}

	return b, nil
}

// DefaultCommandForBackend returns the CLI executable for command-line backends.
var DefaultCommandForBackend = map[string]string{
	"claude":     "claude",
	"gemini-cli": "gemini",
	"qwen":       "qwen",
	"codex":      "codex",
	"opencode":   "opencode",
}

// DefaultArgsForBackend returns the default arguments for command-line backends.
var DefaultArgsForBackend = map[string][]string{
	"claude":     {"--print"},
	"gemini-cli": {},
	"qwen":       {},
	"codex":      {"exec"},
	"opencode":   {"run"},
}

// DefaultModelForBackend returns the default model for a backend.
var DefaultModelForBackend = map[string]string{
	"gemini": "gemini-2.5-flash",
	"openai": "gpt-4o-mini",
	"claude": "sonnet",
	"mock":   "mock-v1",
}
