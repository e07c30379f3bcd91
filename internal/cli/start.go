package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"menubot/internal/app"
	"menubot/internal/config"
)

func newStartCommand(cfg *config.Config, application *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the bot on Telegram",
		Long:  `Start the bot and begin processing Telegram messages and reactions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram token not configured. Run 'menubot config set telegram.token <token>' first")
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			fmt.Println("🤖 Starting menubot...")
			fmt.Printf("   Config: %s\n", cfg.ConfigPath)

			if err := application.Start(ctx); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			return nil
		},
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
