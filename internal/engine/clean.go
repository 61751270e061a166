package engine

import "strings"

// labelPatterns are the speaker-label prefixes stripped from generated
// text. %s is replaced with the speaker's name.
var labelPatterns = []string{
	"%s:",
	"*%s:",
	"*as %s:",
	"*as %s*:",
	"**%s:**",
	"**%s**:",
	"<%s>:",
	"[%s]:",
	"(as %s)",
	"%s -",
}

// CleanUtterance trims text and strips leading speaker labels for any of
// the given names, case-insensitively, until none remain.
func CleanUtterance(text string, names ...string) string {
	text = strings.TrimSpace(text)

	var prefixes []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, p := range labelPatterns {
			prefixes = append(prefixes, strings.ReplaceAll(p, "%s", name))
		}
	}

	for {
		stripped := false
		for _, p := range prefixes {
			if len(text) >= len(p) && strings.EqualFold(text[:len(p)], p) {
				text = strings.TrimSpace(text[len(p):])
				stripped = true
			}
		}
		if !stripped {
			return text
		}
	}
}
