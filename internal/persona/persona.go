// Package persona defines the simulated user that talks to the character.
package persona

import "fmt"

// Persona describes who the simulated user is.
type Persona struct {
	ID            string `json:"id" yaml:"id,omitempty"`
	Name          string `json:"name" yaml:"name"`
	Personality   string `json:"personality" yaml:"personality"`
	Background    string `json:"background" yaml:"background"`
	Interests     string `json:"interests" yaml:"interests"`
	SpeakingStyle string `json:"speaking_style" yaml:"speaking_style"`
}

// Greeting is the opening line used when no generated one is available.
func (p Persona) Greeting() string {
	return fmt.Sprintf("Hi there! I'm %s. It's great to meet you. I'm really interested in %s. What about you?", p.Name, p.Interests)
}

// Merge fills empty fields of p from base.
func (p Persona) Merge(base Persona) Persona {
	if p.Name == "" {
		p.Name = base.Name
	}
	if p.Personality == "" {
		p.Personality = base.Personality
	}
	if p.Background == "" {
		p.Background = base.Background
	}
	if p.Interests == "" {
		p.Interests = base.Interests
	}
	if p.SpeakingStyle == "" {
		p.SpeakingStyle = base.SpeakingStyle
	}
	return p
}

// DefaultPersonas returns the built-in user personas.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			ID:            "default",
			Name:          "User",
			Personality:   "Friendly and curious",
			Background:    "Regular person interested in conversations",
			Interests:     "Various topics",
			SpeakingStyle: "Casual and natural",
		},
		{
			ID:            "student",
			Name:          "Sam",
			Personality:   "Inquisitive, a little shy at first, warms up quickly",
			Background:    "University student studying literature who works part time at a cafe",
			Interests:     "books, indie music, coffee, late-night walks",
			SpeakingStyle: "Short messages, lowercase, occasional emoji",
		},
		{
			ID:            "adventurer",
			Name:          "Riley",
			Personality:   "Bold, playful, and quick to joke",
			Background:    "Travel photographer who has lived in a dozen countries",
			Interests:     "hiking, street food, photography, learning languages",
			SpeakingStyle: "Energetic, vivid descriptions, asks lots of questions",
		},
		{
			ID:            "skeptic",
			Name:          "Morgan",
			Personality:   "Dry, sarcastic, secretly kind",
			Background:    "Software engineer who spends too much time online",
			Interests:     "science fiction, board games, cooking",
			SpeakingStyle: "Deadpan, concise, likes to tease",
		},
		{
			ID:            "mentor",
			Name:          "Alex",
			Personality:   "Patient, warm, thoughtful",
			Background:    "Retired teacher who volunteers at the community garden",
			Interests:     "gardening, history, chess, mentoring",
			SpeakingStyle: "Calm, complete sentences, gently encouraging",
		},
	}
}

// Get returns a built-in persona by ID.
func Get(id string) *Persona {
	for _, p := range DefaultPersonas() {
		if p.ID == id {
			return &p
		}
	}
	return nil
}

// List returns all built-in persona IDs.
func List() []string {
	personas := DefaultPersonas()
	ids := make([]string, len(personas))
	for i, p := range personas {
		ids[i] = p.ID
	}
	return ids
}

// Valid checks if a persona ID is built in.
func Valid(id string) bool {
	return Get(id) != nil
}

// Default returns the default persona.
func Default() Persona {
	return *Get("default")
}
