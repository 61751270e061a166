package provider

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// scriptedCompleter returns the queued results in order.
type scriptedCompleter struct {
	results []error
	calls   int
}

func (s *scriptedCompleter) Name() string { return "scripted" }

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return "", s.results[i]
	}
	return "ok", nil
}

func noBackoff(int) time.Duration { return 0 }

func TestRetrier(t *testing.T) {
	transient := &Error{Provider: "scripted", Message: "unavailable", Transient: true}
	fatal := &Error{Provider: "scripted", Message: "bad request"}

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		inner := &scriptedCompleter{results: []error{transient, transient}}
		r := WithRetry(inner, 2)
		r.Backoff = noBackoff

		got, err := r.Complete(context.Background(), "hi")
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if got != "ok" {
			t.Errorf("Complete() = %q, want ok", got)
		}
		if inner.calls != 3 {
			t.Errorf("calls = %d, want 3", inner.calls)
		}
	})

	t.Run("StopsOnNonTransient", func(t *testing.T) {
		inner := &scriptedCompleter{results: []error{fatal}}
		r := WithRetry(inner, 2)
		r.Backoff = noBackoff

		_, err := r.Complete(context.Background(), "hi")
		if !errors.Is(err, fatal) {
			t.Errorf("Complete() error = %v, want %v", err, fatal)
		}
		if inner.calls != 1 {
			t.Errorf("calls = %d, want 1", inner.calls)
		}
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		inner := &scriptedCompleter{results: []error{transient, transient, transient, transient}}
		r := WithRetry(inner, 1)
		r.Backoff = noBackoff

		_, err := r.Complete(context.Background(), "hi")
		if err == nil || !strings.Contains(err.Error(), "failed after 2 attempts") {
			t.Errorf("Complete() error = %v", err)
		}
		if !IsTransient(err) {
			t.Error("exhausted error should still unwrap to the transient cause")
		}
	})

	t.Run("NegativeUsesDefault", func(t *testing.T) {
		r := WithRetry(&scriptedCompleter{}, -1)
		if r.maxRetries != DefaultMaxRetries {
			t.Errorf("maxRetries = %d, want %d", r.maxRetries, DefaultMaxRetries)
		}
	})

	t.Run("CancelDuringBackoff", func(t *testing.T) {
		inner := &scriptedCompleter{results: []error{transient, transient}}
		r := WithRetry(inner, 2)
		r.Backoff = func(int) time.Duration { return time.Hour }

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := r.Complete(ctx, "hi")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Complete() error = %v, want context.Canceled", err)
		}
	})
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", &Error{Transient: true}, true},
		{"permanent", &Error{}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Provider: "test", Message: "test error"}
	if got, want := err.Error(), "test provider error: test error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestNew(t *testing.T) {
	t.Run("Mock", func(t *testing.T) {
		c, err := New(context.Background(), Config{Backend: "mock"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if c.Name() != "mock" {
			t.Errorf("Name() = %q", c.Name())
		}
	})

	t.Run("GeminiWithoutKey", func(t *testing.T) {
		if _, err := New(context.Background(), Config{Backend: "gemini"}); err == nil {
			t.Error("expected error without API keys")
		}
	})

	t.Run("CLIDefaults", func(t *testing.T) {
		c, err := New(context.Background(), Config{Backend: "claude"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		cli, ok := c.(*Retrier).Unwrap().(*CLI)
		if !ok {
			t.Fatalf("Unwrap() = %T, want *CLI", c.(*Retrier).Unwrap())
		}
		if cli.command != "claude" || len(cli.args) != 1 || cli.args[0] != "--print" {
			t.Errorf("cli = %+v", cli)
		}
		if cli.model != "sonnet" {
			t.Errorf("model = %q, want sonnet", cli.model)
		}
	})

	t.Run("UnknownCLI", func(t *testing.T) {
		if _, err := New(context.Background(), Config{Backend: "nope"}); err == nil {
			t.Error("expected error for backend without a command")
		}
	})
}

func TestMock(t *testing.T) {
	m := NewMock()
	m.Delay = 0

	first, _ := m.Complete(context.Background(), "a")
	second, _ := m.Complete(context.Background(), "b")
	if first == "" || first == second {
		t.Errorf("mock lines = %q, %q", first, second)
	}
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newLimitedWriter(&buf, 5)

	n, err := w.Write([]byte("hello world"))
	if err != nil || n != 11 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if buf.String() != "hello" || !w.limited {
		t.Errorf("buf = %q, limited = %v", buf.String(), w.limited)
	}

	n, _ = w.Write([]byte("more"))
	if n != 4 || buf.Len() != 5 {
		t.Errorf("second write n = %d, buf len = %d", n, buf.Len())
	}
}

func TestExtractText(t *testing.T) {
	tests := map[string]string{
		"plain answer":                    "plain answer",
		`{"result":"from claude"}`:        "from claude",
		`{"response":"from gemini"}`:      "from gemini",
		`{"unrelated":1}`:                 `{"unrelated":1}`,
		`{not json`:                       `{not json`,
	}
	for in, want := range tests {
		if got := extractText(in); got != want {
			t.Errorf("extractText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTransientMessage(t *testing.T) {
	if !transientMessage("Error: Connection reset by peer") {
		t.Error("connection errors should be transient")
	}
	if !transientMessage("API returned 429 Too Many Requests") {
		t.Error("rate limits should be transient")
	}
	if transientMessage("invalid flag --foo") {
		t.Error("usage errors should not be transient")
	}
}

func TestCLIMissingExecutable(t *testing.T) {
	cli, err := NewCLI("custom", Config{Command: "rpgen-definitely-missing-binary"})
	if err != nil {
		t.Fatalf("NewCLI() error = %v", err)
	}
	if cli.Available() {
		t.Fatal("missing binary reported as available")
	}
	_, err = cli.Complete(context.Background(), "hi")
	var pe *Error
	if !errors.As(err, &pe) || pe.Transient {
		t.Errorf("Complete() error = %v, want permanent *Error", err)
	}
}
