package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"menubot/internal/app"
	"menubot/internal/config"
	"menubot/internal/cron"
)

func newBackupCommand(cfg *config.Config, application *app.App) *cobra.Command {
	var (
		dir  string
		keep int
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a JSON snapshot of the store now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = cfg.Backup.Dir
			}
			if dir == "" {
				return fmt.Errorf("no backup directory: set backup.dir or pass --dir")
			}
			if err := cron.BackupJob(application.Store(), dir, keep)(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Snapshot written to %s\n", dir)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Snapshot directory (default backup.dir)")
	cmd.Flags().IntVar(&keep, "keep", cfg.Backup.Keep, "Snapshots to keep, 0 keeps all")

	return cmd
}
