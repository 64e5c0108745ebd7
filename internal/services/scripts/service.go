// Package scripts runs the user-authored pre-backup scripts.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fgeck/gorestic-backup/internal/executor"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Shell interprets each script as a single -c argument.
const Shell = "/bin/sh"

// Service defines the interface for pre-backup script execution.
type Service interface {
	RunAll(ctx context.Context, scripts []models.PreBackupScript) error
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new script runner.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &executor.Default{},
		logger:   logger,
	}
}

// NewWithExecutor creates a script runner with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Run executes one script and reports its outcome.
func (s *Impl) Run(ctx context.Context, script models.PreBackupScript) *models.ScriptResult {
	msg := "executing pre-backup-script"
	if script.Description != "" {
		msg = "executing pre-backup-script: " + script.Description
	}
	s.logger.Info().Str("script", script.Script).Msg(msg)

	start := time.Now()
	output, err := s.executor.Execute(ctx, Shell, "-c", script.Script)
	result := &models.ScriptResult{
		Output:   strings.TrimSpace(string(output)),
		Duration: time.Since(start),
	}

	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		result.Error = fmt.Errorf("pre-backup-script failed: %w, output: %s", err, result.Output)
	}

	if result.Output != "" {
		s.logger.Debug().Str("output", result.Output).Msg("pre-backup-script output")
	}
	return result
}

// RunAll executes the scripts in order. A failing script with FailOnError
// stops the sequence; other failures are logged and skipped.
func (s *Impl) RunAll(ctx context.Context, scripts []models.PreBackupScript) error {
	for i, script := range scripts {
		result := s.Run(ctx, script)
		if result.Error == nil {
			continue
		}

		if script.FailOnError {
			s.logger.Error().Err(result.Error).Int("index", i).Msg("stopped due to pre-backup-script failure")
			return fmt.Errorf("pre-backup-scripts[%d]: %w", i, result.Error)
		}

		s.logger.Warn().
			Err(result.Error).
			Int("index", i).
			Int("exit_code", result.ExitCode).
			Msg("pre-backup-script failed, continuing because fail-on-error is false")
	}
	return nil
}
