package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"menubot/internal/app"
	"menubot/internal/config"
)

func NewRootCommand(cfg *config.Config, application *app.App) *cobra.Command {
	root := &cobra.Command{
		Use:   "menubot",
		Short: "menubot - role-gated menu bot with reaction tracking",
		Long: `🤖 menubot - role-gated menu bot for group chats

Numbered menus per user, owner and admin gated options, feature flags,
and a reaction counter that alerts the owner once a signal is confirmed.`,

		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCommand(cfg, application))
	root.AddCommand(newConsoleCommand(application))
	root.AddCommand(newConfigCommand(cfg))
	root.AddCommand(newStatusCommand(cfg, application))
	root.AddCommand(newCountersCommand(application))
	root.AddCommand(newBackupCommand(cfg, application))
	root.AddCommand(newDoctorCommand(cfg))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "menubot v%s (go)\n", app.Version)
		},
	}
}
