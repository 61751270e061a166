package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alienxp03/rpgen/internal/config"
)

var (
	cfgPath   string
	debug     bool
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rpgen",
	Short: "Roleplay conversation dataset generator",
	Long: `rpgen builds roleplay conversation datasets by pairing a simulated user,
written by a text-completion model, with a Character.AI character.

Each run produces datasets/conversation_<timestamp>.json, saved after
every message pair so an interrupted run keeps everything it produced.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(debug, logFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultFilename, "Config file path (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(stylesCmd)
}

func setupLogging(debug bool, format string) error {
	opts := &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}
	if debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q (use text or json)", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// loadConfigOrDefault reads the config for commands that only browse
// datasets. A missing file is not an error for them.
func loadConfigOrDefault() (*config.Config, error) {
	cfg, err := config.LoadFrom(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("No config file, using defaults", "path", cfgPath)
		return config.Default(), nil
	}
	return nil, err
}

// ============================================================================
// INIT COMMAND
// ============================================================================

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
		}

		if strings.HasSuffix(strings.ToLower(cfgPath), ".json") {
			if err := config.Default().SaveTo(cfgPath); err != nil {
				return err
			}
		} else if err := os.WriteFile(cfgPath, []byte(config.GenerateExample()), 0644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Wrote %s. Fill in your Character.AI token, character id and API keys, then run: rpgen run -c %s\n", cfgPath, cfgPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}
