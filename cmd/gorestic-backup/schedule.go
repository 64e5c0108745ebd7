package main

import (
	"fmt"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var pruneSchedules []string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <cron-expr>...",
	Short: "Run the backup pipeline on a cron schedule",
	Long: `Run as a long-running service. Each argument is a cron expression for the
backup pipeline; the earliest next occurrence wins. Expressions take 5 fields,
an optional leading seconds field, or a descriptor such as "@daily".

With --prune, prune runs on its own schedule and backup runs skip it.
Without --prune, every backup run prunes as its last stage.

Example:
  gorestic-backup schedule "0 2 * * *" "0 14 * * *" --prune "0 5 * * 0"`,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringArrayVar(&pruneSchedules, "prune", nil, "cron expression for prune runs (repeatable)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		log.Error().Msg("at least one backup cron expression is required")
		return fmt.Errorf("%w: at least one backup cron expression is required", models.ErrValidation)
	}

	backup, err := scheduler.NewScheduleSet(args)
	if err != nil {
		log.Error().Err(err).Msg("invalid backup schedule")
		return err
	}

	var prune *scheduler.ScheduleSet
	if len(pruneSchedules) > 0 {
		if prune, err = scheduler.NewScheduleSet(pruneSchedules); err != nil {
			log.Error().Err(err).Msg("invalid prune schedule")
			return err
		}
	}

	runnerSvc, err := newRunner()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return scheduler.New(log.Logger, runnerSvc, backup, prune).Run(ctx)
}
