package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/alienxp03/rpgen/internal/chat"
	"github.com/alienxp03/rpgen/internal/chat/characterai"
	"github.com/alienxp03/rpgen/internal/config"
	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/engine"
	"github.com/alienxp03/rpgen/internal/ledger"
	"github.com/alienxp03/rpgen/internal/persona"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/internal/storage"
	"github.com/alienxp03/rpgen/internal/style"
)

const defaultCharacterName = "Character"

var (
	dryRunFlag      bool
	personaFlag     string
	styleFlag       string
	userBackendFlag string
	targetFlag      int
	characterFlag   string
	scenarioFlag    string
	quietFlag       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate one conversation",
	Long: `Generate one roleplay conversation and save it under the output directory.

Examples:
  rpgen run
  rpgen run --target 20 --persona student --style texting
  rpgen run --user-backend claude
  rpgen run --dry-run --target 5

Press Ctrl+C to stop early; every pair generated so far is kept.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Use mock backends for both speakers and skip pacing delays")
	runCmd.Flags().StringVarP(&personaFlag, "persona", "p", "", fmt.Sprintf("User persona preset (%s)", strings.Join(persona.List(), ", ")))
	runCmd.Flags().StringVarP(&styleFlag, "style", "s", "", fmt.Sprintf("Prompt style (%s)", strings.Join(style.List(), ", ")))
	runCmd.Flags().StringVar(&userBackendFlag, "user-backend", "", "Completion backend for the user side as backend[/model] (gemini, openai, claude, codex, gemini-cli, opencode, mock)")
	runCmd.Flags().IntVarP(&targetFlag, "target", "n", 0, "Message pairs to generate (overrides pipeline.target_message_count)")
	runCmd.Flags().StringVar(&characterFlag, "character", "", "Character.AI character id (overrides character_ai.character_id)")
	runCmd.Flags().StringVar(&scenarioFlag, "scenario", "", "Scenario description (overrides scenario)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Only print the final summary")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := config.Bootstrap(cfgPath); err != nil {
		if errors.Is(err, config.ErrCreated) {
			fmt.Printf("No config file found. Created a starter one at %s.\n", cfgPath)
			fmt.Println("Add your Character.AI token, character id and Gemini API key, then run again.")
			return nil
		}
		return err
	}

	cfg, err := config.LoadFrom(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(dryRunFlag); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outputDir := cfg.OutputDir()
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}

	chatSvc, characterName, cleanup, err := newChatService(ctx, cfg, outputDir)
	if err != nil {
		return err
	}
	defer cleanup()

	user := cfg.Persona()
	prompter, err := style.NewPrompter(cfg.Style(), user, characterName, cfg.Scenario)
	if err != nil {
		return fmt.Errorf("failed to prepare prompts: %w", err)
	}

	started := time.Now()
	path := filepath.Join(outputDir, core.RunFilename(started))
	store, err := storage.NewFileStore(path, cfg.Pipeline.MaxBackups)
	if err != nil {
		return err
	}
	doc := core.NewDocument(core.NewDocumentConfig{
		UserName:      user.Name,
		CharacterName: characterName,
		CharacterID:   cfg.CharacterAI.CharacterID,
		UserModel:     userModel(cfg),
		Scenario:      cfg.Scenario,
		TotalTarget:   cfg.Pipeline.TargetMessageCount,
	}, started)
	l := ledger.New(doc, store)

	var out io.Writer = os.Stdout
	if quietFlag {
		out = io.Discard
	}
	opts := []engine.Option{engine.WithObserver(newConsoleObserver(out))}
	if idx := openIndex(outputDir); idx != nil {
		defer idx.Close()
		opts = append(opts, engine.WithRunIndex(idx))
	}

	engCfg := cfg.EngineConfig(characterName)
	if dryRunFlag {
		engCfg.DelayMin, engCfg.DelayMax = 0, 0
	}

	fmt.Printf("Generating %d message pairs between %s and %s\n", doc.Metadata.TotalTarget, user.Name, characterName)
	fmt.Printf("Saving to %s\n\n", path)

	eng := engine.New(engCfg, completer, chatSvc, prompter, l, opts...)
	summary, err := eng.Run(ctx)

	var initErr *engine.InitError
	if errors.As(err, &initErr) {
		return err
	}
	printSummary(os.Stdout, summary, err)
	return nil
}

func applyRunFlags(cfg *config.Config) error {
	if personaFlag != "" {
		cfg.UserPersona = config.PersonaConfig{Preset: personaFlag}
	}
	if styleFlag != "" {
		cfg.Pipeline.PromptStyle = styleFlag
	}
	if userBackendFlag != "" {
		spec, err := core.ParseBackendSpec(userBackendFlag)
		if err != nil {
			return fmt.Errorf("invalid --user-backend: %w", err)
		}
		cfg.Gemini.Backend = spec.Backend
		if spec.Model != "" {
			cfg.Gemini.Model = spec.Model
		}
	}
	if targetFlag > 0 {
		cfg.Pipeline.TargetMessageCount = targetFlag
	}
	if characterFlag != "" {
		cfg.CharacterAI.CharacterID = characterFlag
	}
	if scenarioFlag != "" {
		cfg.Scenario = scenarioFlag
	}
	return nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (provider.Completer, error) {
	if dryRunFlag {
		return provider.NewMock(), nil
	}
	c, err := provider.New(ctx, cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to set up %s backend: %w", cfg.Backend(), err)
	}
	return c, nil
}

// newChatService returns the character side and its display name. The
// profile cache lives next to the datasets.
func newChatService(ctx context.Context, cfg *config.Config, outputDir string) (chat.Service, string, func(), error) {
	name := cfg.CharacterAI.CharacterName
	if dryRunFlag {
		if name == "" {
			name = "Mock Character"
		}
		return chat.NewMockService(), name, func() {}, nil
	}

	clientCfg := cfg.CharacterAIClientConfig()
	cleanup := func() {}
	cache, err := storage.OpenBoltCache(storage.DefaultCachePath(outputDir))
	if err != nil {
		slog.Warn("Profile cache unavailable", "error", err)
	} else {
		clientCfg.Cache = cache
		cleanup = func() { cache.Close() }
	}

	client, err := characterai.New(clientCfg)
	if err != nil {
		cleanup()
		return nil, "", nil, err
	}

	if name == "" {
		name = defaultCharacterName
		lookupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if ch, err := client.Character(lookupCtx, cfg.CharacterAI.CharacterID); err != nil {
			slog.Warn("Could not look up character name", "character_id", cfg.CharacterAI.CharacterID, "error", err)
		} else if ch.Name != "" {
			name = ch.Name
		}
	}
	return client, name, cleanup, nil
}

// openIndex opens the run index. The index is a convenience, so failures
// are logged and the run continues without it.
func openIndex(outputDir string) storage.RunIndex {
	idx, err := storage.NewSQLiteIndex(storage.DefaultIndexPath(outputDir))
	if err != nil {
		slog.Warn("Run index unavailable", "error", err)
		return nil
	}
	if err := idx.Initialize(); err != nil {
		slog.Warn("Run index unavailable", "error", err)
		idx.Close()
		return nil
	}
	return idx
}

func userModel(cfg *config.Config) string {
	if dryRunFlag {
		return "mock"
	}
	pc := cfg.ProviderConfig()
	model := pc.Model
	if model == "" {
		model = core.DefaultModelForBackend[pc.Backend]
	}
	if model == "" {
		return pc.Backend
	}
	return pc.Backend + "/" + model
}

// consoleObserver prints progress lines.
type consoleObserver struct {
	w io.Writer

	user      lipgloss.Style
	character lipgloss.Style
	notice    lipgloss.Style
	alert     lipgloss.Style
}

// newConsoleObserver colors speaker names and warnings when w is a terminal
// and writes plain text otherwise.
func newConsoleObserver(w io.Writer) *consoleObserver {
	r := lipgloss.NewRenderer(w)
	return &consoleObserver{
		w:         w,
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		character: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#C678DD")),
		notice:    r.NewStyle().Foreground(lipgloss.Color("#E5C07B")),
		alert:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
	}
}

func (o *consoleObserver) OnEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventConnected:
		fmt.Fprintf(o.w, "Connected to %s.\n", o.character.Render(ev.Speaker))
		if ev.Text != "" {
			fmt.Fprintf(o.w, "  %s: %s\n\n", o.character.Render(ev.Speaker), ev.Text)
		}
	case engine.EventWaiting:
		slog.Debug("Pacing", "delay", ev.Delay)
	case engine.EventUserTurn:
		fmt.Fprintf(o.w, "[%d] %s: %s\n", ev.Pair+1, o.user.Render(ev.Speaker), ev.Text)
	case engine.EventCharacterTurn:
		fmt.Fprintf(o.w, "[%d] %s: %s\n", ev.Pair+1, o.character.Render(ev.Speaker), ev.Text)
	case engine.EventPairSaved:
		fmt.Fprintf(o.w, "  %s\n\n", ev.Message)
	case engine.EventFallback, engine.EventSaveWarning, engine.EventReconnecting:
		msg := ev.Message
		if ev.Err != nil {
			msg = fmt.Sprintf("%s: %v", ev.Message, ev.Err)
		}
		fmt.Fprintf(o.w, "  %s\n", o.notice.Render("! "+msg))
	case engine.EventFatal:
		fmt.Fprintf(o.w, "\n%s\n", o.alert.Render(fmt.Sprintf("%s: %v", ev.Message, ev.Err)))
	case engine.EventInterrupted:
		fmt.Fprintf(o.w, "\n%s\n", o.notice.Render("Interrupted. Saving progress..."))
	}
}

func printSummary(w io.Writer, s ledger.Summary, runErr error) {
	if s.Path == "" {
		return
	}
	fmt.Fprintln(w)
	switch s.Status {
	case core.StatusCompleted:
		fmt.Fprintf(w, "Done. %d/%d pairs saved to %s\n", s.PairCount, s.Target, s.Path)
	case core.StatusInterrupted:
		fmt.Fprintf(w, "Stopped early. %d/%d pairs saved to %s\n", s.PairCount, s.Target, s.Path)
	default:
		fmt.Fprintf(w, "Generation failed after %d/%d pairs: %v\n", s.PairCount, s.Target, runErr)
		fmt.Fprintf(w, "Partial conversation saved to %s\n", s.Path)
	}
}
