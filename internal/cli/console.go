package cli

import (
	"os"

	"github.com/spf13/cobra"

	"menubot/internal/app"
)

func newConsoleCommand(application *app.App) *cobra.Command {
	var (
		chatID string
		userID string
		fast   bool
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the bot from the terminal",
		Long: `Run the bot against stdin/stdout instead of Telegram.

Every line is a message. Special lines:
  /react <id> [emoji]   react to message <id>
  /unreact <id>         remove a reaction
  /as <user>            switch the sender
  /quit                 exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return application.RunConsole(ctx, os.Stdin, cmd.OutOrStdout(), chatID, userID, fast)
		},
	}

	cmd.Flags().StringVar(&chatID, "chat", "console", "Chat identifier")
	cmd.Flags().StringVar(&userID, "as", "console-user", "Sender identifier")
	cmd.Flags().BoolVar(&fast, "fast", false, "Send replies without delay")

	return cmd
}
