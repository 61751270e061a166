// Package style defines the prompt templates used to generate the
// simulated user's turns.
package style

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/persona"
)

// Style is a pair of prompt templates: one for the opening message and one
// for every later message.
type Style struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	OpeningPrompt  string `json:"opening_prompt"`
	ContinuePrompt string `json:"continue_prompt"`
}

// DefaultStyles returns the built-in prompt styles.
func DefaultStyles() []Style {
	return []Style{
		{
			ID:          "roleplay",
			Name:        "Roleplay",
			Description: "Stay in character with the full persona sheet on every turn",
			OpeningPrompt: `You are roleplaying as a character with the following traits:

ABOUT YOU (THIS IS WHO YOU ARE):
- Name: {{.User.Name}}
- Personality: {{.User.Personality}}
- Background: {{.User.Background}}
- Interests: {{.User.Interests}}
- Speaking Style: {{.User.SpeakingStyle}}

SCENARIO:
{{.Scenario}}

IMPORTANT INSTRUCTIONS:
- Stay in character as {{.User.Name}}
- Write naturally and conversationally
- Show your personality and background in subtle ways
- Be genuinely interested in the conversation
- Keep responses concise but engaging

Start the conversation in a way that fits the scenario.`,
			ContinuePrompt: `Continue roleplaying as {{.User.Name}} with these traits:

ABOUT YOU:
- Personality: {{.User.Personality}}
- Background: {{.User.Background}}
- Speaking Style: {{.User.SpeakingStyle}}

SCENARIO:
{{.Scenario}}

RECENT CONVERSATION:
{{range .History}}{{$.User.Name}}: {{.UserText}}

{{$.CharacterName}}: {{.CharacterText}}

{{end}}
Respond naturally to the last message while staying in character.`,
		},
		{
			ID:          "texting",
			Name:        "Texting",
			Description: "Short, casual chat messages like a messaging app",
			OpeningPrompt: `You are {{.User.Name}} ({{.User.Personality}}), texting {{.CharacterName}} for the first time.
Context: {{.Scenario}}
You like {{.User.Interests}}. Your texting style: {{.User.SpeakingStyle}}.

Write only your first message. One or two short sentences, no narration.`,
			ContinuePrompt: `You are {{.User.Name}}, texting {{.CharacterName}}.
Context: {{.Scenario}}
Your texting style: {{.User.SpeakingStyle}}.

Chat so far:
{{range .History}}{{$.User.Name}}: {{.UserText}}
{{$.CharacterName}}: {{.CharacterText}}
{{end}}
Write only your next message. One or two short sentences, no narration.`,
		},
		{
			ID:          "narrative",
			Name:        "Narrative",
			Description: "Longer turns with actions written between asterisks",
			OpeningPrompt: `Write the opening turn of a collaborative story as {{.User.Name}}.

{{.User.Name}} is {{.User.Personality}}. Background: {{.User.Background}}.
Setting: {{.Scenario}}

Describe what {{.User.Name}} does between asterisks, then what they say.
Write in first person, one paragraph. Do not write for {{.CharacterName}}.`,
			ContinuePrompt: `Continue the collaborative story as {{.User.Name}} ({{.User.Personality}}).
Setting: {{.Scenario}}

Story so far:
{{range .History}}{{$.User.Name}}: {{.UserText}}

{{$.CharacterName}}: {{.CharacterText}}

{{end}}
Write {{.User.Name}}'s next turn: actions between asterisks, then dialogue.
One paragraph. Do not write for {{.CharacterName}}.`,
		},
	}
}

// Get returns a style by ID.
func Get(id string) *Style {
	for _, s := range DefaultStyles() {
		if s.ID == id {
			return &s
		}
	}
	return nil
}

// List returns all available style IDs.
func List() []string {
	styles := DefaultStyles()
	ids := make([]string, len(styles))
	for i, s := range styles {
		ids[i] = s.ID
	}
	return ids
}

// Valid checks if a style ID is valid.
func Valid(id string) bool {
	return Get(id) != nil
}

// Default returns the default prompt style.
func Default() *Style {
	return Get("roleplay")
}

// PromptData is the template input.
type PromptData struct {
	User          persona.Persona
	CharacterName string
	Scenario      string
	History       []core.MessagePair
}

// Prompter renders the user-side prompts for one conversation.
type Prompter struct {
	style   Style
	opening *template.Template
	next    *template.Template
	data    PromptData
}

// NewPrompter parses the style's templates once.
func NewPrompter(s Style, user persona.Persona, characterName, scenario string) (*Prompter, error) {
	opening, err := template.New(s.ID + "-opening").Parse(s.OpeningPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse opening template: %w", err)
	}
	next, err := template.New(s.ID + "-continue").Parse(s.ContinuePrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse continue template: %w", err)
	}
	return &Prompter{
		style:   s,
		opening: opening,
		next:    next,
		data: PromptData{
			User:          user,
			CharacterName: characterName,
			Scenario:      scenario,
		},
	}, nil
}

// SetCharacterName updates the name used in rendered history.
func (p *Prompter) SetCharacterName(name string) {
	p.data.CharacterName = name
}

// Opening renders the prompt for the first user message.
func (p *Prompter) Opening() (string, error) {
	return execute(p.opening, p.data)
}

// Continue renders the prompt for a later user message given the most
// recent pairs.
func (p *Prompter) Continue(recent []core.MessagePair) (string, error) {
	data := p.data
	data.History = recent
	return execute(p.next, data)
}

func execute(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
