// Package export converts dataset documents into training and reading
// formats.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alienxp03/rpgen/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatJSONL    Format = "jsonl"
	FormatShareGPT Format = "sharegpt"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
)

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatJSON, FormatJSONL, FormatShareGPT, FormatMarkdown, FormatPDF}
}

// Exporter defines the interface for exporting documents.
type Exporter interface {
	Export(doc *core.Document, w io.Writer) error
	FileExtension() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatJSON:
		return &JSONExporter{}, nil
	case FormatJSONL:
		return &JSONLExporter{}, nil
	case FormatShareGPT:
		return &ShareGPTExporter{}, nil
	case FormatMarkdown, "md":
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// GenerateFilename derives the export filename from the dataset file name,
// e.g. conversation_20260102_030405.json -> conversation_20260102_030405.jsonl.
func GenerateFilename(sourcePath, ext string) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if base == "" || base == "." {
		base = "conversation"
	}
	return fmt.Sprintf("%s.%s", base, ext)
}

func speakerNames(doc *core.Document) (user, character string) {
	user = doc.Metadata.Characters.User
	if user == "" {
		user = "User"
	}
	character = doc.Metadata.Characters.Character
	if character == "" {
		character = "Character"
	}
	return user, character
}

func scenarioOf(doc *core.Document) string {
	if doc.Scenario != "" {
		return doc.Scenario
	}
	return doc.Metadata.Scenario
}
