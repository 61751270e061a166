// Package engine drives a generation run: it alternates simulated-user and
// character turns until the target pair count is reached, the run fails,
// or the context is cancelled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/alienxp03/rpgen/internal/chat"
	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/ledger"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/internal/storage"
)

const (
	DefaultContextWindow    = 3
	DefaultMaxReconnects    = 3
	DefaultCharacterRetries = 2

	DefaultContinueFallback  = "Sorry, got distracted for a second! Anyway, what were you saying?"
	DefaultCharacterFallback = "*pauses for a moment* Sorry, could you say that again?"
)

// ErrReconnectExhausted is returned when the chat session cannot be
// re-established within the configured attempts.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// InitError is returned when the chat session cannot be opened at the
// start of a run. No pairs are produced.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize chat session: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Prompter renders user-side prompts.
type Prompter interface {
	Opening() (string, error)
	Continue(recent []core.MessagePair) (string, error)
}

// Config controls a run.
type Config struct {
	CharacterID   string
	UserName      string
	CharacterName string

	// ContextWindow is how many recent pairs condition each user turn.
	ContextWindow int

	// DelayMin and DelayMax bound the pause before each remote call.
	DelayMin time.Duration
	DelayMax time.Duration

	// MaxReconnects bounds reconnect attempts per turn.
	MaxReconnects int

	// CharacterRetries bounds retries of a transiently failing reply.
	CharacterRetries int

	OpeningFallback   string
	ContinueFallback  string
	CharacterFallback string
}

func (c *Config) applyDefaults() {
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = DefaultMaxReconnects
	}
	if c.CharacterRetries < 0 {
		c.CharacterRetries = DefaultCharacterRetries
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin
	}
	if c.OpeningFallback == "" {
		c.OpeningFallback = fmt.Sprintf("Hi there! I'm %s. It's great to meet you. What about you?", c.UserName)
	}
	if c.ContinueFallback == "" {
		c.ContinueFallback = DefaultContinueFallback
	}
	if c.CharacterFallback == "" {
		c.CharacterFallback = DefaultCharacterFallback
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRunIndex records the run in a catalogue.
func WithRunIndex(idx storage.RunIndex) Option {
	return func(e *Engine) { e.index = idx }
}

// WithSleeper replaces the pause implementation.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithRand sets the source used to draw pauses.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rand = r }
}

// Engine runs one generation. It is single use.
type Engine struct {
	cfg       Config
	completer provider.Completer
	chat      chat.Service
	prompts   Prompter
	ledger    *ledger.Ledger
	index     storage.RunIndex
	observer  Observer
	sleep     func(ctx context.Context, d time.Duration) error
	rand      *rand.Rand

	session chat.Session
	record  *core.RunRecord
}

// New creates an engine over the given collaborators and ledger.
func New(cfg Config, completer provider.Completer, chatSvc chat.Service, prompts Prompter, l *ledger.Ledger, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:       cfg,
		completer: completer,
		chat:      chatSvc,
		prompts:   prompts,
		ledger:    l,
		observer:  discardObserver{},
		sleep:     sleepContext,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	l.OnSaveWarning(func(err error) {
		e.emit(Event{Kind: EventSaveWarning, Message: "safe save failed, wrote directly instead", Err: err})
	})
	return e
}

// Run executes the generation until completion, a fatal error, or
// cancellation of ctx. Init failures return an *InitError and persist
// nothing. In every other case the ledger is finalized before returning;
// a fatal mid-run error is returned alongside the summary, while
// cancellation is reported only through the summary status.
func (e *Engine) Run(ctx context.Context) (ledger.Summary, error) {
	if err := e.open(ctx); err != nil {
		slog.Error("Failed to open chat session", "character_id", e.cfg.CharacterID, "error", err)
		e.emit(Event{Kind: EventFatal, Message: "could not connect to the character", Err: err})
		return ledger.Summary{}, &InitError{Err: err}
	}
	e.createRecord()

	status := core.StatusCompleted
	runErr := e.loop(ctx)
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		status = core.StatusInterrupted
		e.emit(Event{Kind: EventInterrupted, Message: "interrupted, saving progress", Pair: e.ledger.Count()})
		runErr = nil
	default:
		status = core.StatusFailed
		slog.Error("Generation aborted", "pairs", e.ledger.Count(), "error", runErr)
		e.emit(Event{Kind: EventFatal, Message: "generation aborted", Pair: e.ledger.Count(), Err: runErr})
	}

	summary := e.finalize(status)
	return summary, runErr
}

func (e *Engine) loop(ctx context.Context) error {
	for e.ledger.Count() < e.ledger.Target() {
		first := e.ledger.Count() == 0
		if !first {
			if err := e.pause(ctx); err != nil {
				return err
			}
		}

		userText, err := e.userTurn(ctx, first)
		if err != nil {
			return err
		}

		if err := e.pause(ctx); err != nil {
			return err
		}

		characterText, err := e.characterTurn(ctx, userText)
		if err != nil {
			return err
		}

		if _, err := e.ledger.AppendPair(userText, characterText); err != nil {
			if errors.Is(err, ledger.ErrEmptyText) || errors.Is(err, ledger.ErrFinalized) {
				return err
			}
			// Both writes failed. The pair is kept in memory and goes out
			// with the next save.
			e.emit(Event{Kind: EventSaveWarning, Message: "could not persist pair", Pair: e.ledger.Count(), Err: err})
		} else {
			e.emit(Event{
				Kind:    EventPairSaved,
				Message: fmt.Sprintf("saved progress: %d / %d", e.ledger.Count(), e.ledger.Target()),
				Pair:    e.ledger.Count(),
			})
		}
		e.updateRecord(core.StatusInProgress)
	}
	return nil
}

// userTurn generates the next simulated-user utterance. Only context
// errors are returned; generation failures fall back to a fixed line.
func (e *Engine) userTurn(ctx context.Context, first bool) (string, error) {
	var (
		prompt string
		err    error
	)
	if first {
		prompt, err = e.prompts.Opening()
	} else {
		prompt, err = e.prompts.Continue(e.ledger.Recent(e.cfg.ContextWindow))
	}

	var text string
	if err == nil {
		text, err = e.completer.Complete(ctx, prompt)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil && !provider.IsTransient(err) {
		return "", fmt.Errorf("generate user message: %w", err)
	}

	text = CleanUtterance(text, e.cfg.UserName, "user")
	if err != nil || text == "" {
		fallback := e.cfg.ContinueFallback
		if first {
			fallback = e.cfg.OpeningFallback
		}
		slog.Warn("Using fallback user message", "error", err)
		e.emit(Event{Kind: EventFallback, Message: "user message generation failed, using fallback", Speaker: e.cfg.UserName, Err: err})
		text = fallback
	}

	e.emit(Event{Kind: EventUserTurn, Speaker: e.cfg.UserName, Text: text, Pair: e.ledger.Count()})
	return text, nil
}

// characterTurn sends userText to the character. Expired sessions are
// reopened and the same text is sent again; transient failures are retried
// and finally replaced with a fallback line.
func (e *Engine) characterTurn(ctx context.Context, userText string) (string, error) {
	reconnects := 0
	failures := 0

	for {
		reply, err := e.session.Send(ctx, userText)
		if err == nil {
			reply = CleanUtterance(reply, e.cfg.CharacterName)
			if reply == "" {
				e.emit(Event{Kind: EventFallback, Message: "character sent an empty reply, using fallback", Speaker: e.cfg.CharacterName})
				reply = e.cfg.CharacterFallback
			}
			e.emit(Event{Kind: EventCharacterTurn, Speaker: e.cfg.CharacterName, Text: reply, Pair: e.ledger.Count()})
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		switch {
		case chat.IsSessionExpired(err):
			slog.Warn("Chat session expired", "error", err)
			if err := e.reconnect(ctx, &reconnects); err != nil {
				return "", err
			}
		case chat.IsTransient(err):
			failures++
			if failures > e.cfg.CharacterRetries {
				slog.Warn("Character reply failed, using fallback", "attempts", failures, "error", err)
				e.emit(Event{Kind: EventFallback, Message: "character reply failed, using fallback", Speaker: e.cfg.CharacterName, Err: err})
				e.emit(Event{Kind: EventCharacterTurn, Speaker: e.cfg.CharacterName, Text: e.cfg.CharacterFallback, Pair: e.ledger.Count()})
				return e.cfg.CharacterFallback, nil
			}
			slog.Warn("Character reply failed, retrying", "attempt", failures, "error", err)
			if err := e.sleep(ctx, time.Duration(failures)*time.Second); err != nil {
				return "", err
			}
		default:
			return "", fmt.Errorf("character reply: %w", err)
		}
	}
}

func (e *Engine) reconnect(ctx context.Context, attempts *int) error {
	e.closeSession()

	var lastErr error
	for *attempts < e.cfg.MaxReconnects {
		*attempts++
		e.emit(Event{
			Kind:    EventReconnecting,
			Message: fmt.Sprintf("session expired, reconnecting (attempt %d/%d)", *attempts, e.cfg.MaxReconnects),
			Pair:    e.ledger.Count(),
		})

		err := e.open(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		slog.Warn("Reconnect failed", "attempt", *attempts, "error", err)
		if !chat.IsTransient(err) && !chat.IsSessionExpired(err) {
			return fmt.Errorf("reconnect: %w", err)
		}
		if err := e.sleep(ctx, time.Duration(*attempts)*time.Second); err != nil {
			return err
		}
	}
	if lastErr == nil {
		return ErrReconnectExhausted
	}
	return fmt.Errorf("%w: %w", ErrReconnectExhausted, lastErr)
}

func (e *Engine) open(ctx context.Context) error {
	s, err := e.chat.Open(ctx, e.cfg.CharacterID)
	if err != nil {
		return err
	}
	e.session = s
	msg := fmt.Sprintf("connected to %s", e.chat.Name())
	e.emit(Event{Kind: EventConnected, Message: msg, Speaker: e.cfg.CharacterName, Text: s.Greeting(), Pair: e.ledger.Count()})
	return nil
}

func (e *Engine) closeSession() {
	if e.session == nil {
		return
	}
	if err := e.session.Close(); err != nil {
		slog.Debug("Closing chat session failed", "error", err)
	}
	e.session = nil
}

func (e *Engine) finalize(status core.RunStatus) ledger.Summary {
	e.closeSession()

	summary, err := e.ledger.Finalize(status)
	if err != nil {
		slog.Error("Final save failed", "path", e.ledger.Path(), "error", err)
		e.emit(Event{Kind: EventSaveWarning, Message: "final save failed", Pair: summary.PairCount, Err: err})
	}
	e.updateRecord(status)

	e.emit(Event{
		Kind:    EventFinished,
		Message: fmt.Sprintf("created %d conversation exchanges", summary.PairCount),
		Pair:    summary.PairCount,
		Summary: &summary,
	})
	return summary
}

// pause waits for a random duration in [DelayMin, DelayMax].
func (e *Engine) pause(ctx context.Context) error {
	d := e.cfg.DelayMin
	if span := e.cfg.DelayMax - e.cfg.DelayMin; span > 0 {
		d += time.Duration(e.rand.Int63n(int64(span) + 1))
	}
	if d <= 0 {
		return ctx.Err()
	}
	e.emit(Event{Kind: EventWaiting, Message: fmt.Sprintf("waiting %.2fs", d.Seconds()), Delay: d, Pair: e.ledger.Count()})
	return e.sleep(ctx, d)
}

func (e *Engine) createRecord() {
	if e.index == nil {
		return
	}
	doc := e.ledger.Snapshot()
	now := time.Now()
	e.record = &core.RunRecord{
		ID:          doc.Metadata.RunID,
		OutputPath:  e.ledger.Path(),
		UserName:    doc.Metadata.Characters.User,
		CharacterID: doc.Metadata.CharacterID,
		Scenario:    doc.Scenario,
		Status:      core.StatusInProgress,
		PairCount:   doc.Metadata.PairCount,
		TotalTarget: doc.Metadata.TotalTarget,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.index.CreateRun(e.record); err != nil {
		slog.Warn("Failed to record run in index", "run_id", e.record.ID, "error", err)
		e.record = nil
	}
}

func (e *Engine) updateRecord(status core.RunStatus) {
	if e.index == nil || e.record == nil {
		return
	}
	now := time.Now()
	e.record.Status = status
	e.record.PairCount = e.ledger.Count()
	e.record.UpdatedAt = now
	if status.IsTerminal() {
		e.record.FinishedAt = &now
	}
	if err := e.index.UpdateRun(e.record); err != nil {
		slog.Warn("Failed to update run index", "run_id", e.record.ID, "error", err)
	}
}

func (e *Engine) emit(ev Event) {
	e.observer.OnEvent(ev)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
