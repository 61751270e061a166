package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/alienxp03/rpgen/internal/core"
)

// JSONExporter writes the document unchanged.
type JSONExporter struct{}

// Export writes the document as indented JSON.
func (e *JSONExporter) Export(doc *core.Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}

// ChatMessage is one message in chat-completion fine-tuning format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatExample is one JSONL line.
type ChatExample struct {
	Messages []ChatMessage `json:"messages"`
}

// JSONLExporter writes the conversation as a single chat-completion example
// per line: a system message carrying the scenario followed by alternating
// user and assistant turns.
type JSONLExporter struct {
	// PerPair emits one line per message pair instead of one per
	// conversation.
	PerPair bool
}

// Export writes JSON Lines.
func (e *JSONLExporter) Export(doc *core.Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	system := systemPrompt(doc)
	if e.PerPair {
		for i, p := range doc.ConversationPairs {
			ex := ChatExample{Messages: []ChatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: p.UserText},
				{Role: "assistant", Content: p.CharacterText},
			}}
			if err := encoder.Encode(ex); err != nil {
				return fmt.Errorf("encode pair %d: %w", i+1, err)
			}
		}
		return nil
	}

	if len(doc.ConversationPairs) == 0 {
		return nil
	}
	ex := ChatExample{Messages: []ChatMessage{{Role: "system", Content: system}}}
	for _, p := range doc.ConversationPairs {
		ex.Messages = append(ex.Messages,
			ChatMessage{Role: "user", Content: p.UserText},
			ChatMessage{Role: "assistant", Content: p.CharacterText},
		)
	}
	return encoder.Encode(ex)
}

// FileExtension returns the file extension for JSON Lines.
func (e *JSONLExporter) FileExtension() string {
	return "jsonl"
}

// ShareGPTTurn is one entry of a ShareGPT conversation.
type ShareGPTTurn struct {
	From  string `json:"from"`
	Value string `json:"value"`
}

// ShareGPTRecord is one ShareGPT conversation.
type ShareGPTRecord struct {
	ID            string         `json:"id"`
	Conversations []ShareGPTTurn `json:"conversations"`
}

// ShareGPTExporter writes a ShareGPT-style JSON array.
type ShareGPTExporter struct{}

// Export writes the conversation as a one-element ShareGPT array.
func (e *ShareGPTExporter) Export(doc *core.Document, w io.Writer) error {
	rec := ShareGPTRecord{
		ID:            doc.Metadata.RunID,
		Conversations: []ShareGPTTurn{{From: "system", Value: systemPrompt(doc)}},
	}
	for _, p := range doc.ConversationPairs {
		rec.Conversations = append(rec.Conversations,
			ShareGPTTurn{From: "human", Value: p.UserText},
			ShareGPTTurn{From: "gpt", Value: p.CharacterText},
		)
	}

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	return encoder.Encode([]ShareGPTRecord{rec})
}

// FileExtension returns the file extension for ShareGPT.
func (e *ShareGPTExporter) FileExtension() string {
	return "sharegpt.json"
}

func systemPrompt(doc *core.Document) string {
	user, character := speakerNames(doc)
	s := fmt.Sprintf("You are %s, talking with %s.", character, user)
	if sc := scenarioOf(doc); sc != "" {
		s += " Scenario: " + sc
	}
	return s
}
