package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// chatFunc matches openai.Client.CreateChatCompletion.
type chatFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)

// OpenAI completes prompts with an OpenAI-compatible chat completion API.
type OpenAI struct {
	model   string
	baseURL string
	timeout time.Duration
	keys    *keyRing
	history *history

	newClient func(apiKey, baseURL string) chatFunc

	mu      sync.Mutex
	clients map[string]chatFunc
}

// NewOpenAI creates an OpenAI completer.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	keys := nonEmpty(cfg.APIKeys)
	if len(keys) == 0 {
		return nil, errors.New("openai requires at least one API key")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAI{
		model:     cfg.Model,
		baseURL:   cfg.BaseURL,
		timeout:   timeout,
		keys:      newKeyRing(keys, cfg.KeyRotationInterval),
		history:   newHistory(cfg.HistorySize),
		newClient: newOpenAIClient,
		clients:   make(map[string]chatFunc),
	}, nil
}

func newOpenAIClient(apiKey, baseURL string) chatFunc {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg).CreateChatCompletion
}

// Name returns the backend identifier.
func (o *OpenAI) Name() string {
	return "openai"
}

// Complete sends the prompt, preceded by the recent exchange history.
func (o *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	key := o.keys.current()

	o.mu.Lock()
	create, ok := o.clients[key]
	if !ok {
		create = o.newClient(key, o.baseURL)
		o.clients[key] = create
	}
	o.mu.Unlock()

	var messages []openai.ChatCompletionMessage
	for _, ex := range o.history.snapshot() {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.Prompt},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Completion},
		)
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := create(callCtx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", o.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Provider: o.Name(), Message: "empty response", Transient: true}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Provider: o.Name(), Message: "empty response", Transient: true}
	}

	o.history.add(prompt, text)
	return text, nil
}

func (o *OpenAI) classify(err error) error {
	code := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		code = reqErr.HTTPStatusCode
	}
	if code == 429 {
		o.keys.advance()
	}

	msg := "chat completion"
	if code != 0 {
		msg = fmt.Sprintf("chat completion: status %d", code)
	}
	return &Error{
		Provider:  o.Name(),
		Message:   msg,
		Transient: statusTransient(code) || IsTransient(err),
		Err:       err,
	}
}
