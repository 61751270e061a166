// Package chat defines the stateful remote chat-session collaborator that
// produces the character's side of a conversation.
package chat

import (
	"context"
	"errors"
)

var (
	// ErrSessionExpired means the remote session is gone and must be
	// reopened before the next message can be sent.
	ErrSessionExpired = errors.New("chat session expired")

	// ErrTransient marks a single failed call that may be retried on the
	// same session.
	ErrTransient = errors.New("transient chat error")
)

// Service opens chat sessions with a remote character.
type Service interface {
	// Name returns the backend identifier.
	Name() string

	// Open starts a new chat with the character.
	Open(ctx context.Context, characterID string) (Session, error)
}

// Session is one open conversation with a character.
type Session interface {
	// Greeting returns the character's opening message, if any.
	Greeting() string

	// Send delivers text and returns the character's reply.
	Send(ctx context.Context, text string) (string, error)

	// Close releases the session.
	Close() error
}

// IsSessionExpired reports whether err requires reopening the session.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// IsTransient reports whether err may be retried on the same session.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
