package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/gorestic-backup/internal/config"
	"github.com/fgeck/gorestic-backup/internal/env"
	"github.com/fgeck/gorestic-backup/internal/services/runner"
	"github.com/rs/zerolog/log"
)

// newRunner loads the startup environment and wires the pipeline executor.
func newRunner() (*runner.Impl, error) {
	resolver := env.New()

	environment, err := config.LoadEnvironment(resolver, configFile)
	if err != nil {
		log.Error().Err(err).Msg("invalid environment")
		return nil, err
	}

	log.Info().
		Str("repository", environment.Repository).
		Str("host", environment.Hostname).
		Str("backup_root", environment.BackupRoot).
		Str("config", environment.ConfigPath).
		Msg("environment loaded")

	loader := config.NewLoader(environment.ConfigPath, resolver)
	return runner.New(log.Logger, *environment, loader, resolver), nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}
