package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune the repository",
	Long:  `Remove unreferenced data from the repository. RESTIC_PRUNE_TIMEOUT (e.g. "12h", "1d") bounds the run.`,
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	runnerSvc, err := newRunner()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := runnerSvc.Prune(ctx); err != nil {
		log.Error().Err(err).Msg("prune failed")
		return err
	}

	log.Info().Msg("prune completed successfully")
	return nil
}
