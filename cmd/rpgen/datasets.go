package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/export"
	"github.com/alienxp03/rpgen/internal/persona"
	"github.com/alienxp03/rpgen/internal/storage"
	"github.com/alienxp03/rpgen/internal/style"
)

// ============================================================================
// LIST COMMAND
// ============================================================================

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigOrDefault()
		if err != nil {
			return err
		}
		dir := cfg.OutputDir()

		paths, err := storage.ListDocuments(dir)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			fmt.Printf("No conversations in %s. Start one with: rpgen run\n", dir)
			return nil
		}
		if listLimit > 0 && len(paths) > listLimit {
			paths = paths[:listLimit]
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILE\tSPEAKERS\tPAIRS\tSTATUS\tDATE")
		for _, p := range paths {
			doc, err := storage.ReadDocument(p)
			if err != nil {
				fmt.Fprintf(w, "-\t%s\t(unreadable)\t-\t-\t-\n", filepath.Base(p))
				continue
			}
			m := doc.Metadata
			fmt.Fprintf(w, "%s\t%s\t%s & %s\t%d/%d\t%s\t%s\n",
				core.ShortID(m.RunID),
				filepath.Base(p),
				m.Characters.User,
				m.Characters.Character,
				len(doc.ConversationPairs),
				m.TotalTarget,
				m.Status,
				m.Date,
			)
		}
		return w.Flush()
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "Maximum conversations to list (0 = all)")
}

// ============================================================================
// SHOW COMMAND
// ============================================================================

var showCmd = &cobra.Command{
	Use:   "show [id|file]",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, _, err := resolveDocument(args[0])
		if err != nil {
			return err
		}
		return (&export.MarkdownExporter{}).Export(doc, os.Stdout)
	},
}

// ============================================================================
// EXPORT COMMAND
// ============================================================================

var (
	exportFormat  string
	exportOutput  string
	exportPerPair bool
)

var exportCmd = &cobra.Command{
	Use:   "export [id|file]",
	Short: "Export a conversation",
	Long: `Export a conversation for training or reading.

Formats: json, jsonl (chat fine-tuning), sharegpt, markdown, pdf.

Examples:
  rpgen export 1a2b3c4d --format jsonl
  rpgen export datasets/conversation_20260102_030405.json -f pdf -o chat.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, path, err := resolveDocument(args[0])
		if err != nil {
			return err
		}

		exporter, err := export.GetExporter(export.Format(exportFormat))
		if err != nil {
			return err
		}
		if jl, ok := exporter.(*export.JSONLExporter); ok {
			jl.PerPair = exportPerPair
		}

		out := exportOutput
		if out == "" {
			out = filepath.Join(filepath.Dir(path), "exports", export.GenerateFilename(path, exporter.FileExtension()))
		}
		if out == "-" {
			return exporter.Export(doc, os.Stdout)
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := exporter.Export(doc, f); err != nil {
			f.Close()
			return fmt.Errorf("export failed: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}

		fmt.Printf("Exported %d pairs to %s\n", len(doc.ConversationPairs), out)
		return nil
	},
}

func init() {
	names := make([]string, 0, len(export.Formats()))
	for _, f := range export.Formats() {
		names = append(names, string(f))
	}
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.FormatJSONL), "Export format ("+strings.Join(names, ", ")+")")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: <output_dir>/exports/<name>, - for stdout)")
	exportCmd.Flags().BoolVar(&exportPerPair, "per-pair", false, "jsonl: one example per message pair")
}

// resolveDocument accepts a path, a dataset file name, or a (prefix of a)
// run id.
func resolveDocument(ref string) (*core.Document, string, error) {
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		doc, err := storage.ReadDocument(ref)
		return doc, ref, err
	}

	cfg, err := loadConfigOrDefault()
	if err != nil {
		return nil, "", err
	}
	paths, err := storage.ListDocuments(cfg.OutputDir())
	if err != nil {
		return nil, "", err
	}
	for _, p := range paths {
		base := filepath.Base(p)
		if base == ref || strings.TrimSuffix(base, storage.DocumentExt) == ref {
			doc, err := storage.ReadDocument(p)
			return doc, p, err
		}
	}
	for _, p := range paths {
		doc, err := storage.ReadDocument(p)
		if err != nil {
			continue
		}
		if strings.HasPrefix(doc.Metadata.RunID, ref) {
			return doc, p, nil
		}
	}
	return nil, "", fmt.Errorf("conversation not found: %s", ref)
}

// ============================================================================
// PERSONAS / STYLES COMMANDS
// ============================================================================

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List built-in user personas",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPERSONALITY")
		for _, p := range persona.DefaultPersonas() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Personality)
		}
		w.Flush()
	},
}

var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "List prompt styles",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")
		for _, s := range style.DefaultStyles() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Name, s.Description)
		}
		w.Flush()
	},
}
