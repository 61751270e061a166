package chat

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var mockReplies = []string{
	"Oh, that's interesting! Tell me more about it.",
	"*smiles warmly* I hadn't thought about it that way before.",
	"Hmm, I'm not so sure. What makes you say that?",
	"That reminds me of something that happened to me last week.",
	"Ha! You always know how to make me laugh.",
}

// MockService is a chat backend that answers with canned replies. It is
// used for dry runs.
type MockService struct {
	// Delay simulates network latency for each reply.
	Delay time.Duration

	mu    sync.Mutex
	count int
}

// NewMockService creates a mock chat backend.
func NewMockService() *MockService {
	return &MockService{Delay: 200 * time.Millisecond}
}

// Name returns the backend identifier.
func (m *MockService) Name() string { return "mock" }

// Open starts a new simulated chat.
func (m *MockService) Open(ctx context.Context, characterID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockSession{
		service:  m,
		greeting: fmt.Sprintf("Hello there! I'm %s. Nice to meet you.", characterID),
	}, nil
}

func (m *MockService) next() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	reply := mockReplies[m.count%len(mockReplies)]
	m.count++
	return reply
}

type mockSession struct {
	service  *MockService
	greeting string
	closed   bool
}

func (s *mockSession) Greeting() string { return s.greeting }

func (s *mockSession) Send(ctx context.Context, text string) (string, error) {
	if s.closed {
		return "", ErrSessionExpired
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(s.service.Delay):
	}
	return s.service.next(), nil
}

func (s *mockSession) Close() error {
	s.closed = true
	return nil
}
