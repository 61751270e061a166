package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alienxp03/rpgen/internal/chat/characterai"
	"github.com/alienxp03/rpgen/internal/config"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/internal/storage"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and test both backends",
	Long: `Validate the config, send a one-word prompt to the completion backend,
and fetch the Character.AI account and character profile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFrom(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(false); err != nil {
			return err
		}
		fmt.Printf("Config %s is valid.\n\n", cfgPath)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		failed := false

		// Completion backend
		fmt.Printf("Completion backend (%s): ", cfg.Backend())
		if c, err := provider.New(ctx, cfg.ProviderConfig()); err != nil {
			failed = true
			fmt.Printf("FAILED\n  %v\n", err)
		} else {
			status := provider.Check(ctx, c)
			if status.Available {
				fmt.Printf("OK (%s)\n", status.ResponseTime.Round(time.Millisecond))
			} else {
				failed = true
				fmt.Printf("FAILED\n  %s\n", status.Error)
			}
		}

		// Character.AI
		fmt.Print("Character.AI: ")
		if err := checkCharacterAI(ctx, cfg); err != nil {
			failed = true
			fmt.Printf("FAILED\n  %v\n", err)
		}

		if failed {
			return errors.New("one or more checks failed")
		}
		return nil
	},
}

func checkCharacterAI(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	clientCfg := cfg.CharacterAIClientConfig()
	if cache, err := storage.OpenBoltCache(storage.DefaultCachePath(cfg.OutputDir())); err == nil {
		defer cache.Close()
		clientCfg.Cache = cache
	}

	client, err := characterai.New(clientCfg)
	if err != nil {
		return err
	}
	account, err := client.Account(ctx)
	if err != nil {
		return err
	}
	ch, err := client.Character(ctx, cfg.CharacterAI.CharacterID)
	if err != nil {
		return fmt.Errorf("signed in as %s, but character lookup failed: %w", account.Username, err)
	}
	fmt.Printf("OK (signed in as %s, character %q)\n", account.Username, ch.Name)
	return nil
}
