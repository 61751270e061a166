package provider

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIComplete(t *testing.T) {
	var requests []openai.ChatCompletionRequest
	var keys []string

	o, err := NewOpenAI(Config{APIKeys: []string{"k1", "k2"}, Model: "gpt-test", HistorySize: 1})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	calls := 0
	o.newClient = func(apiKey, baseURL string) chatFunc {
		return func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			calls++
			keys = append(keys, apiKey)
			requests = append(requests, req)
			if calls == 1 {
				return openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}
			}
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: " hi there "},
				}},
			}, nil
		}
	}

	_, err = o.Complete(context.Background(), "first")
	var pe *Error
	if !errors.As(err, &pe) || !pe.Transient {
		t.Fatalf("Complete() error = %v, want transient", err)
	}

	got, err := o.Complete(context.Background(), "first")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "hi there" {
		t.Errorf("Complete() = %q", got)
	}
	if keys[1] != "k2" {
		t.Errorf("rate limit should rotate key, got %s", keys[1])
	}

	if _, err := o.Complete(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	last := requests[len(requests)-1]
	if len(last.Messages) != 3 || last.Model != "gpt-test" {
		t.Errorf("request = %+v", last)
	}
}
