package provider

import (
	"context"
	"sync"
	"time"
)

var mockLines = []string{
	"Hey! I was just thinking about you. How has your day been?",
	"That sounds amazing. What got you interested in that?",
	"Honestly, I've never tried it, but I'd love to someday.",
	"Wait, really? Tell me everything!",
	"Haha, you're funny. So what are you up to this weekend?",
}

// Mock returns canned lines in order. It is used for dry runs.
type Mock struct {
	// Delay simulates generation latency.
	Delay time.Duration

	mu    sync.Mutex
	count int
}

// NewMock creates a mock completer.
func NewMock() *Mock {
	return &Mock{Delay: 200 * time.Millisecond}
}

// Name returns the backend identifier.
func (m *Mock) Name() string {
	return "mock"
}

// Complete returns the next canned line.
func (m *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(m.Delay):
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	line := mockLines[m.count%len(mockLines)]
	m.count++
	return line, nil
}
