// Package provider generates the simulated user's side of a conversation
// through a text-completion backend.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alienxp03/rpgen/internal/core"
)

// Completer turns a prompt into a single completion.
type Completer interface {
	// Name returns the backend identifier (e.g., "gemini", "claude").
	Name() string

	// Complete sends the prompt and returns the generated text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// HealthChecker is implemented by completers that can verify they are
// reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) HealthStatus
}

// HealthCheckPrompt is a minimal prompt used to probe a backend.
const HealthCheckPrompt = "Reply with the single word: ok"

// HealthStatus is the outcome of a health check.
type HealthStatus struct {
	Available    bool          `json:"available"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// Config selects and configures a completion backend.
type Config struct {
	// Backend is "gemini", "openai", "mock", or the name of a local AI CLI
	// ("claude", "codex", "opencode", "cli").
	Backend string

	Model string

	// APIKeys rotate every KeyRotationInterval.
	APIKeys             []string
	KeyRotationInterval time.Duration

	// HistorySize bounds how many previous exchanges are sent along with
	// each prompt. Zero disables history.
	HistorySize int

	// BaseURL overrides the endpoint of OpenAI-compatible backends.
	BaseURL string

	// Command and Args configure CLI backends.
	Command string
	Args    []string

	Timeout    time.Duration
	MaxRetries int
}

// New builds the completer described by cfg, wrapped with retry.
func New(ctx context.Context, cfg Config) (Completer, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "gemini"
	}
	if cfg.Model == "" {
		cfg.Model = core.DefaultModelForBackend[backend]
	}

	var (
		c   Completer
		err error
	)
	switch backend {
	case "gemini":
		c, err = NewGemini(ctx, cfg)
	case "openai":
		c, err = NewOpenAI(cfg)
	case "mock":
		return NewMock(), nil
	default:
		if cfg.Command == "" {
			cfg.Command = core.DefaultCommandForBackend[backend]
		}
		if len(cfg.Args) == 0 {
			cfg.Args = core.DefaultArgsForBackend[backend]
		}
		c, err = NewCLI(backend, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s completer: %w", backend, err)
	}
	return WithRetry(c, cfg.MaxRetries), nil
}

// Check runs a health check when the completer supports one.
func Check(ctx context.Context, c Completer) HealthStatus {
	if hc, ok := c.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return probe(ctx, c)
}

func probe(ctx context.Context, c Completer) HealthStatus {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out, err := c.Complete(ctx, HealthCheckPrompt)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("unexpected response: empty")
	}
	status := HealthStatus{
		Available:    err == nil,
		ResponseTime: time.Since(start),
		CheckedAt:    time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
