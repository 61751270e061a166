package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alienxp03/rpgen/internal/chat/characterai"
	"github.com/alienxp03/rpgen/internal/core"
	"github.com/alienxp03/rpgen/internal/provider"
	"github.com/alienxp03/rpgen/web/handlers"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Browse generated conversations in a web browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigOrDefault()
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("port") && cfg.Server.Port != 0 {
			servePort = cfg.Server.Port
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := handlers.Options{OutputDir: cfg.OutputDir()}
		if idx := openIndex(cfg.OutputDir()); idx != nil {
			defer idx.Close()
			opts.Index = idx
		}
		// Health checks are optional; a backend that cannot be built
		// (missing keys) is left out of the report.
		if c, err := provider.New(ctx, cfg.ProviderConfig()); err == nil {
			opts.Completer = c
			opts.Backend = core.BackendSpec{Backend: cfg.Backend(), Model: cfg.Gemini.Model}
		} else {
			slog.Debug("Completion health check disabled", "error", err)
		}
		if client, err := characterai.New(cfg.CharacterAIClientConfig()); err == nil {
			opts.CharacterAI = func(ctx context.Context) error {
				_, err := client.Account(ctx)
				return err
			}
		} else {
			slog.Debug("Character.AI health check disabled", "error", err)
		}

		fmt.Printf("\nServing %s on http://localhost:%d\n", cfg.OutputDir(), servePort)
		fmt.Println("Press Ctrl+C to stop the server")

		return startWebServer(ctx, handlers.New(opts), servePort)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8182, "Server port")
}

func startWebServer(ctx context.Context, h *handlers.Handler, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the server shuts down.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
