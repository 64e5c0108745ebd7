package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Apply the retention policy without taking a backup",
	Args:  cobra.NoArgs,
	RunE:  runRotate,
}

func runRotate(cmd *cobra.Command, args []string) error {
	runnerSvc, err := newRunner()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := runnerSvc.Rotate(ctx); err != nil {
		log.Error().Err(err).Msg("rotation failed")
		return err
	}

	log.Info().Msg("rotation completed successfully")
	return nil
}
