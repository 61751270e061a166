package engine

import (
	"time"

	"github.com/alienxp03/rpgen/internal/ledger"
)

// EventKind identifies a progress event.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventWaiting       EventKind = "waiting"
	EventUserTurn      EventKind = "user_turn"
	EventCharacterTurn EventKind = "character_turn"
	EventFallback      EventKind = "fallback"
	EventPairSaved     EventKind = "pair_saved"
	EventSaveWarning   EventKind = "save_warning"
	EventReconnecting  EventKind = "reconnecting"
	EventFatal         EventKind = "fatal"
	EventInterrupted   EventKind = "interrupted"
	EventFinished      EventKind = "finished"
)

// Event is a progress report from a running generation.
type Event struct {
	Kind    EventKind
	Message string

	// Speaker and Text are set for turn events.
	Speaker string
	Text    string

	// Pair is the number of stored pairs when the event was emitted.
	Pair  int
	Delay time.Duration
	Err   error

	// Summary is set on EventFinished.
	Summary *ledger.Summary
}

// Observer receives progress events. Calls happen on the generation
// goroutine and should return quickly.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type discardObserver struct{}

func (discardObserver) OnEvent(Event) {}
