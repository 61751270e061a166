package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Gemini completes prompts with the Gemini API. Keys rotate on a fixed
// interval and immediately after a rate limit.
type Gemini struct {
	model   string
	timeout time.Duration
	keys    *keyRing
	history *history

	newClient func(ctx context.Context, apiKey string) (generateFunc, error)

	mu      sync.Mutex
	clients map[string]generateFunc
}

// NewGemini creates a Gemini completer.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	keys := nonEmpty(cfg.APIKeys)
	if len(keys) == 0 {
		return nil, errors.New("gemini requires at least one API key")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gemini{
		model:     cfg.Model,
		timeout:   timeout,
		keys:      newKeyRing(keys, cfg.KeyRotationInterval),
		history:   newHistory(cfg.HistorySize),
		newClient: newGenaiClient,
		clients:   make(map[string]generateFunc),
	}, nil
}

func newGenaiClient(ctx context.Context, apiKey string) (generateFunc, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models.GenerateContent, nil
}

// Name returns the backend identifier.
func (g *Gemini) Name() string {
	return "gemini"
}

// Complete sends the prompt, preceded by the recent exchange history.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	key := g.keys.current()
	generate, err := g.client(ctx, key)
	if err != nil {
		return "", &Error{Provider: g.Name(), Message: "create client", Err: err}
	}

	var contents []*genai.Content
	for _, ex := range g.history.snapshot() {
		contents = append(contents,
			genai.NewContentFromText(ex.Prompt, genai.RoleUser),
			genai.NewContentFromText(ex.Completion, genai.RoleModel),
		)
	}
	contents = append(contents, genai.NewContentFromText(prompt, genai.RoleUser))

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := generate(callCtx, g.model, contents, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", g.classify(err)
	}

	text := responseText(res)
	if text == "" {
		return "", &Error{Provider: g.Name(), Message: "empty response", Transient: true}
	}

	g.history.add(prompt, text)
	return text, nil
}

func (g *Gemini) client(ctx context.Context, key string) (generateFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fn, ok := g.clients[key]; ok {
		return fn, nil
	}
	fn, err := g.newClient(ctx, key)
	if err != nil {
		return nil, err
	}
	g.clients[key] = fn
	return fn, nil
}

func (g *Gemini) classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	if code == 429 {
		slog.Warn("Gemini rate limited, rotating API key")
		g.keys.advance()
	}

	msg := "generate content"
	if code != 0 {
		msg = fmt.Sprintf("generate content: status %d", code)
	}
	return &Error{
		Provider:  g.Name(),
		Message:   msg,
		Transient: statusTransient(code) || IsTransient(err),
		Err:       err,
	}
}

func responseText(res *genai.GenerateContentResponse) string {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
