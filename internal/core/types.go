// Package core contains the core domain types for rpgen.
package core

import (
	"time"
)

// TimestampLayout is the layout used for human-readable timestamps inside
// dataset documents.
const TimestampLayout = "2006-01-02 15:04:05"

// RunStatus represents the current status of a generation run.
type RunStatus string

const (
	StatusInProgress  RunStatus = "in_progress"
	StatusCompleted   RunStatus = "completed"
	StatusInterrupted RunStatus = "interrupted"
	StatusFailed      RunStatus = "failed"
)

// IsTerminal reports whether the status marks a finished run.
func (s RunStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusInterrupted || s == StatusFailed
}

// Participants holds the display names of both speakers.
type Participants struct {
	User      string `json:"user"`
	Character string `json:"character"`
}

// Metadata describes a dataset document.
type Metadata struct {
	RunID       string       `json:"run_id"`
	Date        string       `json:"date"`
	Characters  Participants `json:"characters"`
	Scenario    string       `json:"scenario"`
	PairCount   int          `json:"pair_count"`
	TotalTarget int          `json:"total_target"`
	Status      RunStatus    `json:"status"`
	UserModel   string       `json:"user_model,omitempty"`
	CharacterID string       `json:"character_id,omitempty"`
}

// MessagePair is one user utterance together with the character's reply.
type MessagePair struct {
	UserText      string `json:"user"`
	CharacterText string `json:"character"`
	CreatedAt     string `json:"timestamp"`
}

// Document is the full persisted state of one generation run.
type Document struct {
	Metadata          Metadata      `json:"metadata"`
	Scenario          string        `json:"scenario"`
	ConversationPairs []MessagePair `json:"conversation_pairs"`
}

// NewDocumentConfig holds the values needed to start a new document.
type NewDocumentConfig struct {
	UserName      string
	CharacterName string
	CharacterID   string
	UserModel     string
	Scenario      string
	TotalTarget   int
}

// NewDocument creates an empty document for a fresh run.
func NewDocument(cfg NewDocumentConfig, now time.Time) *Document {
	return &Document{
		Metadata: Metadata{
			RunID: GenerateID(),
			Date:  now.Format(TimestampLayout),
			Characters: Participants{
				User:      cfg.UserName,
				Character: cfg.CharacterName,
			},
			Scenario:    cfg.Scenario,
			TotalTarget: cfg.TotalTarget,
			Status:      StatusInProgress,
			UserModel:   cfg.UserModel,
			CharacterID: cfg.CharacterID,
		},
		Scenario:          cfg.Scenario,
		ConversationPairs: []MessagePair{},
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() Document {
	out := *d
	out.ConversationPairs = make([]MessagePair, len(d.ConversationPairs))
	copy(out.ConversationPairs, d.ConversationPairs)
	return out
}

// Remaining returns how many pairs are still needed to reach the target.
func (d *Document) Remaining() int {
	if n := d.Metadata.TotalTarget - d.Metadata.PairCount; n > 0 {
		return n
	}
	return 0
}

// RunRecord is a lightweight catalogue entry for a run.
type RunRecord struct {
	ID          string     `json:"id"`
	OutputPath  string     `json:"output_path"`
	UserName    string     `json:"user_name"`
	CharacterID string     `json:"character_id"`
	Scenario    string     `json:"scenario"`
	Status      RunStatus  `json:"status"`
	PairCount   int        `json:"pair_count"`
	TotalTarget int        `json:"total_target"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
