package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/alienxp03/rpgen/internal/core"
)

// MarkdownExporter exports documents to Markdown format.
type MarkdownExporter struct{}

// Export writes the document as Markdown.
func (e *MarkdownExporter) Export(doc *core.Document, w io.Writer) error {
	var sb strings.Builder
	user, character := speakerNames(doc)
	meta := doc.Metadata

	// Title
	sb.WriteString(fmt.Sprintf("# %s and %s\n\n", user, character))

	// Metadata
	sb.WriteString("## Conversation Information\n\n")
	sb.WriteString(fmt.Sprintf("- **Run:** `%s`\n", meta.RunID))
	sb.WriteString(fmt.Sprintf("- **Date:** %s\n", meta.Date))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", statusLabel(meta.Status)))
	sb.WriteString(fmt.Sprintf("- **Pairs:** %d / %d\n", len(doc.ConversationPairs), meta.TotalTarget))
	if meta.CharacterID != "" {
		sb.WriteString(fmt.Sprintf("- **Character ID:** `%s`\n", meta.CharacterID))
	}
	if meta.UserModel != "" {
		sb.WriteString(fmt.Sprintf("- **User model:** %s\n", meta.UserModel))
	}
	sb.WriteString("\n")

	if sc := scenarioOf(doc); sc != "" {
		sb.WriteString("## Scenario\n\n")
		sb.WriteString(sc)
		sb.WriteString("\n\n")
	}

	// Conversation
	sb.WriteString("## Conversation\n\n")

	if len(doc.ConversationPairs) == 0 {
		sb.WriteString("*No messages recorded.*\n\n")
	} else {
		for i, p := range doc.ConversationPairs {
			sb.WriteString(fmt.Sprintf("### Exchange %d\n\n", i+1))
			if p.CreatedAt != "" {
				sb.WriteString(fmt.Sprintf("*%s*\n\n", p.CreatedAt))
			}
			sb.WriteString(fmt.Sprintf("**%s:** %s\n\n", user, p.UserText))
			sb.WriteString(fmt.Sprintf("**%s:** %s\n\n", character, p.CharacterText))
			sb.WriteString("---\n\n")
		}
	}

	// Footer
	sb.WriteString("*Exported from rpgen*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}

func statusLabel(s core.RunStatus) string {
	switch s {
	case core.StatusCompleted:
		return "Completed"
	case core.StatusInterrupted:
		return "Interrupted"
	case core.StatusFailed:
		return "Failed"
	case core.StatusInProgress:
		return "In progress"
	}
	return string(s)
}
