package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"menubot/internal/app"
	"menubot/internal/config"
	"menubot/internal/features"
)

func newStatusCommand(cfg *config.Config, application *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bot status and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.Init(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "🤖 menubot v%s\n\n", app.Version)

			fmt.Fprintln(out, "📱 Telegram:")
			if cfg.Telegram.Token != "" {
				fmt.Fprintf(out, "  Bot Token: %s\n", maskToken(cfg.Telegram.Token))
			} else {
				fmt.Fprintln(out, "  ❌ Not configured (console only)")
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "👥 Roles:")
			fmt.Fprintf(out, "  Owner: %s\n", orNone(cfg.Roles.Owner))
			fmt.Fprintf(out, "  Admins: %d\n", len(cfg.Roles.Admins))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "📋 Menu:")
			fmt.Fprintf(out, "  Prefix: %s\n", cfg.Menu.Prefix)
			fmt.Fprintf(out, "  Session timeout: %s\n", cfg.Menu.Timeout)
			fmt.Fprintf(out, "  Stored sessions: %d\n", application.Sessions().Count())
			fmt.Fprintln(out)

			fmt.Fprintln(out, "🚩 Features:")
			master := application.Flags().Raw(features.MasterSwitch)
			for _, f := range application.Flags().List() {
				state := "🟢"
				if !f.Enabled {
					state = "🔴"
				} else if !master && f.Name != features.MasterSwitch {
					state = "⚪"
				}
				fmt.Fprintf(out, "  %s %s\n", state, f.Name)
			}
			fmt.Fprintln(out)

			fmt.Fprintln(out, "📈 Stock counters:")
			fmt.Fprintf(out, "  Trigger: %q, threshold %d\n", cfg.Stock.TriggerPhrase, cfg.Stock.Threshold)
			fmt.Fprintf(out, "  Tracked messages: %d\n", len(application.Tracker().List()))
			fmt.Fprintln(out)

			fmt.Fprintln(out, "💾 Storage:")
			fmt.Fprintf(out, "  Path: %s\n", cfg.StoragePath)
			if cfg.Backup.Schedule != "" {
				fmt.Fprintf(out, "  Backups: %s -> %s (keep %d)\n", cfg.Backup.Schedule, cfg.Backup.Dir, cfg.Backup.Keep)
			} else {
				fmt.Fprintln(out, "  Backups: disabled")
			}
			return nil
		},
	}
}

func newCountersCommand(application *app.App) *cobra.Command {
	return &cobra.Command{
		Use:   "counters",
		Short: "List tracked stock signals and their reaction counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.Init(cmd.Context()); err != nil {
				return err
			}

			counters := application.Tracker().List()
			if len(counters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tracked messages.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMESSAGE\tCOUNT\tCONFIRMED\tCREATED\tTEXT")
			for _, c := range counters {
				confirmed := "no"
				if c.ThresholdCrossed {
					confirmed = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					c.ID, c.MessageKey, c.Count, confirmed, c.CreatedAt.Format("2006-01-02 15:04"), c.Snippet)
			}
			return w.Flush()
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
