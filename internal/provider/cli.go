package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const (
	// MaxOutputSize caps how much CLI output is kept (10MB).
	MaxOutputSize = 10 * 1024 * 1024

	// DefaultTimeout bounds a single CLI invocation.
	DefaultTimeout = 5 * time.Minute
)

// CLI runs a locally installed AI command-line tool, passing the prompt as
// the final argument and reading the completion from stdout.
type CLI struct {
	name    string
	command string
	args    []string
	model   string
	timeout time.Duration
}

// NewCLI creates a CLI completer.
func NewCLI(name string, cfg Config) (*CLI, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("no command configured for backend %q", name)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CLI{
		name:    name,
		command: cfg.Command,
		args:    cfg.Args,
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

// Name returns the backend identifier.
func (p *CLI) Name() string {
	return p.name
}

// Available checks if the CLI tool is installed.
func (p *CLI) Available() bool {
	_, err := exec.LookPath(p.command)
	return err == nil
}

// Complete runs the CLI once.
func (p *CLI) Complete(ctx context.Context, prompt string) (string, error) {
	if _, err := exec.LookPath(p.command); err != nil {
		return "", &Error{
			Provider: p.name,
			Message:  fmt.Sprintf("executable '%s' not found in PATH", p.command),
			Err:      err,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append([]string{}, p.args...)
	if p.model != "" {
		args = append(args, "--model", p.model)
	}
	args = append(args, prompt)

	slog.Debug("Executing CLI command",
		"provider", p.name,
		"command", p.command,
		"prompt_len", len(prompt),
	)

	cmd := exec.CommandContext(ctx, p.command, args...)

	var stdout, stderr bytes.Buffer
	stdoutLimited := newLimitedWriter(&stdout, MaxOutputSize)
	stderrLimited := newLimitedWriter(&stderr, MaxOutputSize)
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &Error{
				Provider:  p.name,
				Message:   "command timed out",
				Transient: true,
				Err:       ctx.Err(),
			}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "command failed"
		} else if stderrLimited.limited {
			msg += "\n... (output truncated)"
		}
		slog.Debug("CLI command failed", "provider", p.name, "error", err, "stderr", msg)
		return "", &Error{
			Provider:  p.name,
			Message:   msg,
			Transient: transientMessage(msg),
			Err:       err,
		}
	}

	result := parseOutput(p.name, stdout.String())
	if stdoutLimited.limited {
		slog.Warn("CLI output truncated", "provider", p.name, "limit", MaxOutputSize)
	}
	return result, nil
}

// transientMessage reports whether CLI stderr describes a retryable
// condition.
func transientMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"timeout", "timed out", "connection", "network", "temporary", "unavailable", "rate limit", "overloaded", "429"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// limitedWriter wraps an io.Writer and drops everything past limit.
type limitedWriter struct {
	w       io.Writer
	n       int64
	limit   int64
	limited bool
}

func newLimitedWriter(w io.Writer, limit int64) *limitedWriter {
	return &limitedWriter{w: w, limit: limit}
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.n >= l.limit {
		l.limited = true
		return total, nil
	}

	remaining := l.limit - l.n
	if int64(len(p)) > remaining {
		p = p[:remaining]
		l.limited = true
	}

	n, err := l.w.Write(p)
	l.n += int64(n)
	if err != nil {
		return n, err
	}
	return total, nil
}
