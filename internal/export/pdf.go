package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/alienxp03/rpgen/internal/core"
)

// PDFExporter exports documents to PDF format.
type PDFExporter struct{}

// Export writes the document as PDF.
func (e *PDFExporter) Export(doc *core.Document, w io.Writer) error {
	user, character := speakerNames(doc)
	meta := doc.Metadata

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, tr(sanitizeText(fmt.Sprintf("%s and %s", user, character))), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Conversation Information")
	pdf.Ln(8)

	addMetadataRow(pdf, "Run:", core.ShortID(meta.RunID))
	addMetadataRow(pdf, "Date:", meta.Date)
	addMetadataRow(pdf, "Status:", statusLabel(meta.Status))
	addMetadataRow(pdf, "Pairs:", fmt.Sprintf("%d / %d", len(doc.ConversationPairs), meta.TotalTarget))
	if meta.UserModel != "" {
		addMetadataRow(pdf, "User model:", meta.UserModel)
	}
	pdf.Ln(3)

	if sc := scenarioOf(doc); sc != "" {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, "Scenario")
		pdf.Ln(8)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, tr(sanitizeText(sc)), "", "", false)
		pdf.Ln(5)
	}

	// Conversation
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Conversation")
	pdf.Ln(8)

	if len(doc.ConversationPairs) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No messages recorded.")
		pdf.Ln(6)
	}
	for i, p := range doc.ConversationPairs {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		addMessage(pdf, tr, fmt.Sprintf("%d. %s", i+1, user), p.UserText, 200, 230, 255)    // Light blue
		addMessage(pdf, tr, fmt.Sprintf("%d. %s", i+1, character), p.CharacterText, 200, 255, 200) // Light green
		pdf.Ln(3)
	}

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Exported from rpgen", "", 0, "C", false, 0, "")

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

func addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

func addMessage(pdf *gofpdf.Fpdf, tr func(string) string, header, text string, r, g, b int) {
	pdf.SetFillColor(r, g, b)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(0, 7, tr(sanitizeText(header)), "", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetFillColor(255, 255, 255)
	pdf.MultiCell(0, 5, tr(sanitizeText(text)), "", "", false)
	pdf.Ln(2)
}

// sanitizeText maps typographic characters the core fonts cannot render.
func sanitizeText(text string) string {
	replacer := strings.NewReplacer(
		"\u2018", "'",
		"\u2019", "'",
		"\u201C", "\"",
		"\u201D", "\"",
		"\u2013", "-",
		"\u2014", "--",
		"\u2026", "...",
		"\u2022", "*",
		"\u00A0", " ",
	)
	return replacer.Replace(text)
}
