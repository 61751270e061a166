package provider

import (
	"encoding/json"
	"strings"
)

// textBlock is a typed content block as printed by Claude and Qwen.
type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseOutput extracts the completion text from a CLI's stdout. Each CLI
// has its own structured output mode; plain text is returned unchanged.
func parseOutput(backend, out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return out
	}

	var text string
	switch backend {
	case "claude":
		text = parseClaude(out)
	case "codex":
		text = parseCodex(out)
	case "opencode":
		text = parseOpencode(out)
	case "gemini-cli":
		text = parseGeminiCLI(out)
	case "qwen":
		text = parseQwen(out)
	}
	if text != "" {
		return strings.TrimSpace(text)
	}
	return extractText(out)
}

// parseClaude handles `claude --output-format json`.
func parseClaude(out string) string {
	var raw struct {
		Content []textBlock `json:"content"`
		Result  string      `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, c := range raw.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() > 0 {
		return sb.String()
	}
	return raw.Result
}

// parseCodex handles `codex exec --json` event lines, falling back to a
// single chat-completion shaped object.
func parseCodex(out string) string {
	var sb strings.Builder
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event struct {
			Message *struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Message != nil && event.Message.Role != "user" {
			sb.WriteString(event.Message.Content)
		}
		sb.WriteString(event.Text)
	}
	if sb.Len() > 0 {
		return sb.String()
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err == nil && len(raw.Choices) > 0 {
		return raw.Choices[0].Message.Content
	}
	return ""
}

// parseOpencode handles `opencode run --format json` event lines.
func parseOpencode(out string) string {
	var sb strings.Builder
	for _, line := range strings.Split(out, "\n") {
		var event struct {
			Type string `json:"type"`
			Part *struct {
				Text string `json:"text"`
			} `json:"part"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &event); err != nil {
			continue
		}
		if event.Type == "text" && event.Part != nil {
			sb.WriteString(event.Part.Text)
		}
	}
	return sb.String()
}

// parseGeminiCLI handles `gemini --output-format json`, which may also
// carry an API-shaped candidates list.
func parseGeminiCLI(out string) string {
	var raw struct {
		Response   string `json:"response"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return ""
	}
	if raw.Response != "" {
		return raw.Response
	}
	if len(raw.Candidates) > 0 {
		var sb strings.Builder
		for _, part := range raw.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		return sb.String()
	}
	return ""
}

// parseQwen handles the event array printed by newer Qwen CLIs and the
// older {"output": {"text": ...}} object.
func parseQwen(out string) string {
	var events []struct {
		Type    string `json:"type"`
		Result  string `json:"result"`
		Message *struct {
			Content []textBlock `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &events); err == nil && len(events) > 0 {
		var assistant strings.Builder
		for _, e := range events {
			if e.Type == "result" && e.Result != "" {
				return e.Result
			}
			if e.Type == "assistant" && e.Message != nil {
				for _, c := range e.Message.Content {
					if c.Type == "text" {
						assistant.WriteString(c.Text)
					}
				}
			}
		}
		return assistant.String()
	}

	var legacy struct {
		Output struct {
			Text string `json:"text"`
		} `json:"output"`
	}
	if err := json.Unmarshal([]byte(out), &legacy); err == nil {
		return legacy.Output.Text
	}
	return ""
}

// extractText unwraps the generic JSON envelopes some CLIs print in
// structured output mode. Plain text is returned unchanged.
func extractText(out string) string {
	if !strings.HasPrefix(out, "{") {
		return out
	}
	var envelope struct {
		Result   string `json:"result"`
		Response string `json:"response"`
		Content  string `json:"content"`
		Text     string `json:"text"`
	}
	if err := json.Unmarshal([]byte(out), &envelope); err != nil {
		return out
	}
	for _, s := range []string{envelope.Result, envelope.Response, envelope.Content, envelope.Text} {
		if s != "" {
			return s
		}
	}
	return out
}
