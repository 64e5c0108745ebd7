package main

import (
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backup pipeline once",
	Long: `Execute the complete backup pipeline:
1. Initialize the restic repository (if needed) and remove stale locks
2. Load the config file
3. Run pre-backup scripts
4. Dump every configured source into its subdirectory of BACKUP_ROOT
5. Back up BACKUP_ROOT to the restic repository
6. Apply the retention policy
7. Prune the repository
8. Send a Telegram notification (if configured)`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	runnerSvc, err := newRunner()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := runnerSvc.Run(ctx, models.RunOptions{Prune: true}); err != nil {
		log.Error().Err(err).Msg("backup failed")
		return err
	}

	log.Info().Msg("backup completed successfully")
	return nil
}
