// Package config handles application configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alienxp03/rpgen/internal/chat/characterai"
	"github.com/alienxp03/rpgen/internal/engine"
	"github.com/alienxp03/rpgen/internal/persona"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/internal/style"
	"gopkg.in/yaml.v3"
)

// DefaultFilename is the config file looked up when none is given.
const DefaultFilename = "config.json"

// ErrCreated is returned by Bootstrap when a default config was written
// because none existed.
var ErrCreated = errors.New("default config created")

// Config represents the application configuration.
type Config struct {
	CharacterAI CharacterAIConfig `yaml:"character_ai" json:"character_ai"`
	Gemini      GeminiConfig      `yaml:"gemini" json:"gemini"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	UserPersona PersonaConfig     `yaml:"user_persona" json:"user_persona"`
	Scenario    string            `yaml:"scenario" json:"scenario"`
	Server      ServerConfig      `yaml:"server,omitempty" json:"server,omitempty"`
}

// CharacterAIConfig holds Character.AI credentials and endpoints.
type CharacterAIConfig struct {
	Token         string `yaml:"token" json:"token"`
	CharacterID   string `yaml:"character_id" json:"character_id"`
	CharacterName string `yaml:"character_name,omitempty" json:"character_name,omitempty"`
	APIURL        string `yaml:"api_url,omitempty" json:"api_url,omitempty"`
	WSURL         string `yaml:"ws_url,omitempty" json:"ws_url,omitempty"`
}

// GeminiConfig configures the completion backend that writes the user's
// side. Despite the section name it also selects CLI and OpenAI backends.
type GeminiConfig struct {
	Backend             string   `yaml:"backend,omitempty" json:"backend,omitempty"`
	APIKeys             []string `yaml:"api_keys" json:"api_keys"`
	KeyRotationInterval int      `yaml:"key_rotation_interval" json:"key_rotation_interval"` // seconds
	HistorySize         int      `yaml:"history_size" json:"history_size"`
	Model               string   `yaml:"model" json:"model"`
	BaseURL             string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Command             string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args                []string `yaml:"args,omitempty" json:"args,omitempty"`
	Timeout             int      `yaml:"timeout,omitempty" json:"timeout,omitempty"` // seconds
	MaxRetries          int      `yaml:"max_retries" json:"max_retries"`
}

// PipelineConfig controls pacing, persistence and recovery.
type PipelineConfig struct {
	TargetMessageCount int     `yaml:"target_message_count" json:"target_message_count"`
	DelayMin           float64 `yaml:"delay_min" json:"delay_min"`
	DelayMax           float64 `yaml:"delay_max" json:"delay_max"`
	MaxBackups         int     `yaml:"max_backups" json:"max_backups"`
	ContextWindow      int     `yaml:"context_window,omitempty" json:"context_window,omitempty"`
	MaxReconnects      int     `yaml:"max_reconnects,omitempty" json:"max_reconnects,omitempty"`
	CharacterRetries   int     `yaml:"character_retries,omitempty" json:"character_retries,omitempty"`
	OutputDir          string  `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`
	PromptStyle        string  `yaml:"prompt_style,omitempty" json:"prompt_style,omitempty"`
}

// PersonaConfig describes the simulated user. Preset names a built-in
// persona whose fields fill anything left blank.
type PersonaConfig struct {
	Preset        string `yaml:"preset,omitempty" json:"preset,omitempty"`
	Name          string `yaml:"name" json:"name"`
	Personality   string `yaml:"personality" json:"personality"`
	Background    string `yaml:"background" json:"background"`
	Interests     string `yaml:"interests,omitempty" json:"interests,omitempty"`
	SpeakingStyle string `yaml:"speaking_style,omitempty" json:"speaking_style,omitempty"`
}

// ServerConfig holds dataset browser settings.
type ServerConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Default returns the default configuration.
func Default() *Config {
	p := persona.Default()
	return &Config{
		Gemini: GeminiConfig{
			Backend:             "gemini",
			APIKeys:             []string{},
			KeyRotationInterval: 60,
			HistorySize:         10,
			Model:               "gemini-1.5-pro",
			Timeout:             300,
			MaxRetries:          2,
		},
		Pipeline: PipelineConfig{
			TargetMessageCount: 50,
			DelayMin:           2.0,
			DelayMax:           4.0,
			MaxBackups:         5,
			ContextWindow:      engine.DefaultContextWindow,
			MaxReconnects:      engine.DefaultMaxReconnects,
			CharacterRetries:   engine.DefaultCharacterRetries,
			OutputDir:          "datasets",
			PromptStyle:        style.Default().ID,
		},
		UserPersona: PersonaConfig{
			Name:          p.Name,
			Personality:   p.Personality,
			Background:    p.Background,
			Interests:     p.Interests,
			SpeakingStyle: p.SpeakingStyle,
		},
		Scenario: "A casual conversation between two individuals",
		Server: ServerConfig{
			Port: 8182,
		},
	}
}

// Bootstrap makes sure a config file exists at path. When it does not, the
// default document is written and ErrCreated is returned.
func Bootstrap(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config: %w", err)
	}
	if err := Default().SaveTo(path); err != nil {
		return err
	}
	return ErrCreated
}

// LoadFrom loads configuration from path, merged over the defaults, then
// applies .env and process environment overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := unmarshal(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	env, err := LoadEnv(filepath.Join(filepath.Dir(path), ".env"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if env == nil {
		env = make(map[string]string)
	}
	// An exported but empty variable does not hide the .env value.
	for _, key := range EnvKeys {
		if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
			env[key] = val
		}
	}
	ApplyEnvOverrides(cfg, env)

	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isJSON(path) {
		return json.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// SaveTo saves the configuration to path, as JSON for .json files and YAML
// otherwise.
func (c *Config) SaveTo(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks the settings a run needs. Credentials are only required
// for the backends that use them, so dry runs pass with mock set.
func (c *Config) Validate(dryRun bool) error {
	var problems []string

	if !dryRun {
		if strings.TrimSpace(c.CharacterAI.Token) == "" {
			problems = append(problems, "character_ai.token is required")
		}
		if strings.TrimSpace(c.CharacterAI.CharacterID) == "" {
			problems = append(problems, "character_ai.character_id is required")
		}
		if c.needsAPIKeys() && len(nonBlank(c.Gemini.APIKeys)) == 0 {
			problems = append(problems, fmt.Sprintf("gemini.api_keys is required for backend %q", c.Backend()))
		}
	}

	p := c.Pipeline
	if p.TargetMessageCount < 1 {
		problems = append(problems, "pipeline.target_message_count must be at least 1")
	}
	if p.DelayMin < 0 || p.DelayMax < 0 {
		problems = append(problems, "pipeline delays must not be negative")
	} else if p.DelayMin > p.DelayMax {
		problems = append(problems, "pipeline.delay_min must not exceed pipeline.delay_max")
	}
	if p.MaxBackups < 0 {
		problems = append(problems, "pipeline.max_backups must not be negative")
	}
	if p.PromptStyle != "" && !style.Valid(p.PromptStyle) {
		problems = append(problems, fmt.Sprintf("unknown pipeline.prompt_style %q (available: %s)", p.PromptStyle, strings.Join(style.List(), ", ")))
	}
	if pc := c.UserPersona.Preset; pc != "" && !persona.Valid(pc) {
		problems = append(problems, fmt.Sprintf("unknown user_persona.preset %q (available: %s)", pc, strings.Join(persona.List(), ", ")))
	}
	if c.Gemini.KeyRotationInterval < 0 || c.Gemini.HistorySize < 0 {
		problems = append(problems, "gemini.key_rotation_interval and gemini.history_size must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Backend returns the normalized completion backend name.
func (c *Config) Backend() string {
	b := strings.ToLower(strings.TrimSpace(c.Gemini.Backend))
	if b == "" {
		return "gemini"
	}
	return b
}

func (c *Config) needsAPIKeys() bool {
	switch c.Backend() {
	case "gemini":
		return true
	case "openai":
		// A custom endpoint may not need a key.
		return c.Gemini.BaseURL == ""
	}
	return false
}

// OutputDir returns the dataset directory.
func (c *Config) OutputDir() string {
	if c.Pipeline.OutputDir == "" {
		return "datasets"
	}
	return c.Pipeline.OutputDir
}

// ProviderConfig converts the completion settings to provider.Config.
func (c *Config) ProviderConfig() provider.Config {
	return provider.Config{
		Backend:             c.Backend(),
		Model:               c.Gemini.Model,
		APIKeys:             nonBlank(c.Gemini.APIKeys),
		KeyRotationInterval: time.Duration(c.Gemini.KeyRotationInterval) * time.Second,
		HistorySize:         c.Gemini.HistorySize,
		BaseURL:             c.Gemini.BaseURL,
		Command:             c.Gemini.Command,
		Args:                c.Gemini.Args,
		Timeout:             time.Duration(c.Gemini.Timeout) * time.Second,
		MaxRetries:          c.Gemini.MaxRetries,
	}
}

// CharacterAIClientConfig converts the Character.AI section.
func (c *Config) CharacterAIClientConfig() characterai.Config {
	return characterai.Config{
		Token:  c.CharacterAI.Token,
		APIURL: c.CharacterAI.APIURL,
		WSURL:  c.CharacterAI.WSURL,
	}
}

// EngineConfig converts the pipeline settings to engine.Config.
func (c *Config) EngineConfig(characterName string) engine.Config {
	return engine.Config{
		CharacterID:      c.CharacterAI.CharacterID,
		UserName:         c.Persona().Name,
		CharacterName:    characterName,
		ContextWindow:    c.Pipeline.ContextWindow,
		DelayMin:         seconds(c.Pipeline.DelayMin),
		DelayMax:         seconds(c.Pipeline.DelayMax),
		MaxReconnects:    c.Pipeline.MaxReconnects,
		CharacterRetries: c.Pipeline.CharacterRetries,
		OpeningFallback:  c.Persona().Greeting(),
	}
}

// Persona resolves the user persona: configured fields first, then the
// preset, then the default persona.
func (c *Config) Persona() persona.Persona {
	u := c.UserPersona
	p := persona.Persona{
		ID:            u.Preset,
		Name:          u.Name,
		Personality:   u.Personality,
		Background:    u.Background,
		Interests:     u.Interests,
		SpeakingStyle: u.SpeakingStyle,
	}
	if preset := persona.Get(u.Preset); preset != nil {
		p = p.Merge(*preset)
	}
	return p.Merge(persona.Default())
}

// Style resolves the prompt style, falling back to the default.
func (c *Config) Style() style.Style {
	if s := style.Get(c.Pipeline.PromptStyle); s != nil {
		return *s
	}
	return *style.Default()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func nonBlank(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// GenerateExample generates an example YAML configuration file.
func GenerateExample() string {
	example := `# rpgen configuration file
# JSON (config.json) and YAML (config.yaml) are both accepted.

character_ai:
  token: ""                 # Character.AI token (or CHARACTER_AI_TOKEN)
  character_id: ""          # character to talk to (or CHARACTER_AI_CHARACTER_ID)
  character_name: ""        # empty = looked up from the character profile

gemini:
  backend: gemini           # gemini, openai, claude, codex, gemini-cli, opencode, mock
  api_keys: []              # rotated every key_rotation_interval seconds (or GEMINI_API_KEYS)
  key_rotation_interval: 60
  history_size: 10          # previous exchanges sent as chat history
  model: gemini-1.5-pro
  timeout: 300              # seconds, CLI backends only
  max_retries: 2            # total attempts = max_retries + 1

pipeline:
  target_message_count: 50  # message pairs per conversation
  delay_min: 2.0            # seconds
  delay_max: 4.0
  max_backups: 5
  context_window: 3         # recent pairs that condition the user's next line
  max_reconnects: 3
  character_retries: 2
  output_dir: datasets
  prompt_style: roleplay    # roleplay, texting, narrative

user_persona:
  preset: ""                # default, student, adventurer, skeptic, mentor
  name: User
  personality: Friendly and curious
  background: Regular person interested in conversations
  interests: Various topics
  speaking_style: Casual and natural

scenario: A casual conversation between two individuals

server:
  port: 8182
`
	return example
}
