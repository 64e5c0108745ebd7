// Package runner orchestrates the backup pipeline.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fgeck/gorestic-backup/internal/env"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/fgeck/gorestic-backup/internal/services/elasticdump"
	"github.com/fgeck/gorestic-backup/internal/services/influxdump"
	"github.com/fgeck/gorestic-backup/internal/services/mongodump"
	"github.com/fgeck/gorestic-backup/internal/services/mysqldump"
	"github.com/fgeck/gorestic-backup/internal/services/pgdump"
	"github.com/fgeck/gorestic-backup/internal/services/restic"
	"github.com/fgeck/gorestic-backup/internal/services/retention"
	"github.com/fgeck/gorestic-backup/internal/services/scripts"
	"github.com/fgeck/gorestic-backup/internal/services/telegram"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service defines the interface for the pipeline executor.
type Service interface {
	Run(ctx context.Context, opts models.RunOptions) error
	Rotate(ctx context.Context) error
	Prune(ctx context.Context) error
}

// ConfigLoader loads the config file at the start of each run.
type ConfigLoader interface {
	Load() (*models.BackupConfig, error)
}

// Dumper runs the dump adapter of a source job.
type Dumper interface {
	Dump(ctx context.Context, targetDir string, job models.SourceJob) *models.DumpResult
}

// RetentionResolver turns the config keep block into a retention policy.
type RetentionResolver interface {
	Policy(keep models.KeepConfig) (models.RetentionPolicy, error)
}

// Impl implements the runner Service interface.
type Impl struct {
	env         models.Environment
	loader      ConfigLoader
	resticSvc   restic.Service
	scriptsSvc  scripts.Service
	dumper      Dumper
	retention   RetentionResolver
	telegramSvc telegram.Service
	logger      zerolog.Logger
}

// New creates a new runner with the production services.
func New(logger zerolog.Logger, environment models.Environment, loader ConfigLoader, resolver *env.Resolver) *Impl {
	registry := dump.NewRegistry(logger,
		elasticdump.New(logger),
		mysqldump.New(logger),
		pgdump.New(logger),
		mongodump.New(logger),
		influxdump.New(logger),
	)

	return &Impl{
		env:         environment,
		loader:      loader,
		resticSvc:   restic.New(logger),
		scriptsSvc:  scripts.New(logger),
		dumper:      registry,
		retention:   retention.NewEngine(logger, resolver),
		telegramSvc: telegram.New(logger),
		logger:      logger,
	}
}

// NewWithServices creates a new runner with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	environment models.Environment,
	loader ConfigLoader,
	resticSvc restic.Service,
	scriptsSvc scripts.Service,
	dumper Dumper,
	retentionSvc RetentionResolver,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		env:         environment,
		loader:      loader,
		resticSvc:   resticSvc,
		scriptsSvc:  scriptsSvc,
		dumper:      dumper,
		retention:   retentionSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
	}
}

func (s *Impl) resticConfig() models.ResticConfig {
	return models.ResticConfig{
		Repository: s.env.Repository,
		Password:   s.env.Password,
	}
}

// execution carries the state of one run.
type execution struct {
	run    *models.PipelineRun
	cfg    *models.BackupConfig
	logger zerolog.Logger
}

func (s *Impl) begin(kind models.RunKind) *execution {
	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
	logger := s.logger.With().Str("run_id", run.ID).Str("kind", string(kind)).Logger()
	logger.Info().
		Str("repository", s.env.Repository).
		Str("host", s.env.Hostname).
		Msg("starting run")
	return &execution{run: run, logger: logger}
}

// stage runs fn and records its outcome. A failure is returned as a *models.StageError.
func (x *execution) stage(stage models.Stage, fn func() error) error {
	start := time.Now()
	x.logger.Debug().Str("stage", string(stage)).Msg("entering stage")

	err := fn()
	x.run.Record(stage, start, err)
	if err != nil {
		x.logger.Error().Err(err).Str("stage", string(stage)).Msg("stage failed")
		return &models.StageError{Stage: stage, Err: err}
	}
	return nil
}

// finish logs the outcome and sends the notification once the config is known.
func (s *Impl) finish(ctx context.Context, x *execution, runErr error) {
	duration := time.Since(x.run.StartedAt)
	if runErr != nil {
		x.logger.Error().
			Err(runErr).
			Str("failed_stage", string(x.run.FailedStage())).
			Dur("duration", duration).
			Msg("run failed")
	} else {
		x.logger.Info().Dur("duration", duration).Msg("run completed successfully")
	}

	if x.cfg != nil && x.cfg.Telegram != nil {
		s.sendNotification(ctx, x, runErr)
	}
}

// Run executes the full pipeline. With opts.Prune the repository is pruned as the last stage.
func (s *Impl) Run(ctx context.Context, opts models.RunOptions) (err error) {
	x := s.begin(models.RunBackup)
	defer func() { s.finish(ctx, x, err) }()

	if err := s.initRepository(ctx, x); err != nil {
		return err
	}
	if err := x.stage(models.StageUnlock, func() error {
		return s.resticSvc.Unlock(ctx, s.resticConfig())
	}); err != nil {
		return err
	}
	if err := s.loadConfig(x); err != nil {
		return err
	}
	if err := x.stage(models.StageBackupRoot, func() error {
		return s.ensureBackupRoot(x)
	}); err != nil {
		return err
	}
	if err := x.stage(models.StageScripts, func() error {
		return s.scriptsSvc.RunAll(ctx, x.cfg.PreBackupScripts)
	}); err != nil {
		return err
	}
	for _, job := range x.cfg.Sources {
		if err := x.stage(models.DumpStage(job.Type), func() error {
			return s.dumpSource(ctx, x, job)
		}); err != nil {
			return err
		}
	}
	if err := x.stage(models.StageBackup, func() error {
		return s.backup(ctx, x)
	}); err != nil {
		return err
	}
	if err := s.forget(ctx, x); err != nil {
		return err
	}
	if opts.Prune {
		return s.prune(ctx, x)
	}
	return nil
}

// Rotate applies the retention policy without taking a backup.
func (s *Impl) Rotate(ctx context.Context) (err error) {
	x := s.begin(models.RunRotate)
	defer func() { s.finish(ctx, x, err) }()

	if err := s.initRepository(ctx, x); err != nil {
		return err
	}
	if err := s.loadConfig(x); err != nil {
		return err
	}
	return s.forget(ctx, x)
}

// Prune removes unreferenced data, bounded by the prune timeout.
func (s *Impl) Prune(ctx context.Context) (err error) {
	x := s.begin(models.RunPrune)
	defer func() { s.finish(ctx, x, err) }()

	if err := s.initRepository(ctx, x); err != nil {
		return err
	}
	if err := s.loadConfig(x); err != nil {
		return err
	}
	return s.prune(ctx, x)
}

func (s *Impl) initRepository(ctx context.Context, x *execution) error {
	return x.stage(models.StageInit, func() error {
		return s.resticSvc.Init(ctx, s.resticConfig())
	})
}

func (s *Impl) loadConfig(x *execution) error {
	return x.stage(models.StageConfig, func() error {
		cfg, err := s.loader.Load()
		if err != nil {
			return err
		}
		// Reject bad filters before any dump touches the disk.
		for _, job := range cfg.Sources {
			if _, err := dump.NewFilter(job.Include, job.Exclude); err != nil {
				return fmt.Errorf("%s: %w", job.Type, err)
			}
		}
		x.cfg = cfg
		return nil
	})
}

func (s *Impl) ensureBackupRoot(x *execution) error {
	_, err := os.Stat(s.env.BackupRoot)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat backup root: %w", err)
	}

	x.logger.Info().Str("path", s.env.BackupRoot).Msg("creating backup root")
	if err := os.MkdirAll(s.env.BackupRoot, 0o750); err != nil {
		return fmt.Errorf("failed to create backup root: %w", err)
	}
	return nil
}

// recreateDir empties the dump directory of a source by removing and recreating it.
func recreateDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("unable to delete old dump dir %s: %w", dir, err)
	}
	if err := os.Mkdir(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create dump dir %s: %w", dir, err)
	}
	return nil
}

func (s *Impl) dumpSource(ctx context.Context, x *execution, job models.SourceJob) error {
	dir := filepath.Join(s.env.BackupRoot, job.Subdir)
	if err := recreateDir(dir); err != nil {
		return err
	}

	result := s.dumper.Dump(ctx, dir, job)
	x.run.Dumps = append(x.run.Dumps, *result)
	if result.Error != nil {
		return fmt.Errorf("%s dump failed: %w", job.Type, result.Error)
	}
	return nil
}

func (s *Impl) backup(ctx context.Context, x *execution) error {
	settings := x.cfg.Backup
	settings.Root = s.env.BackupRoot
	settings.Host = s.env.Hostname

	result, err := s.resticSvc.Backup(ctx, s.resticConfig(), settings)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("backup failed: %w", result.Error)
	}

	x.run.Backup = result
	return nil
}

func (s *Impl) forget(ctx context.Context, x *execution) error {
	return x.stage(models.StageForget, func() error {
		policy, err := s.retention.Policy(x.cfg.Keep)
		if err != nil {
			return err
		}
		if policy.Empty() {
			x.logger.Warn().Msg("no retention policy configured, keeping forever")
			return nil
		}

		if err := s.resticSvc.Unlock(ctx, s.resticConfig()); err != nil {
			return err
		}

		result, err := s.resticSvc.Forget(ctx, s.resticConfig(), policy)
		if err != nil {
			return fmt.Errorf("forget failed: %w", err)
		}
		if result.Error != nil {
			return fmt.Errorf("forget failed: %w", result.Error)
		}

		x.run.Forget = result
		return nil
	})
}

func (s *Impl) prune(ctx context.Context, x *execution) error {
	return x.stage(models.StagePrune, func() error {
		if err := s.resticSvc.Unlock(ctx, s.resticConfig()); err != nil {
			return err
		}

		if s.env.PruneTimeout > 0 {
			x.logger.Info().Str("timeout", s.env.PruneTimeoutToken).Msg("pruning repository with timeout")
		}

		result, err := s.resticSvc.Prune(ctx, s.resticConfig(), models.PruneSettings{
			Options: x.cfg.PruneOptions,
			Timeout: s.env.PruneTimeout,
		})
		if err != nil {
			return fmt.Errorf("prune failed: %w", err)
		}
		if result.Error != nil {
			return result.Error
		}
		return nil
	})
}

func (s *Impl) sendNotification(ctx context.Context, x *execution, runErr error) {
	run := x.run
	msg := models.TelegramMessage{
		Success:    runErr == nil,
		Kind:       run.Kind,
		RunID:      run.ID,
		Host:       s.env.Hostname,
		Repository: s.env.Repository,
		StartTime:  run.StartedAt,
		Duration:   time.Since(run.StartedAt),
		Dumps:      run.Dumps,
	}

	if runErr != nil {
		msg.FailedStage = run.FailedStage()
		msg.ErrorMessage = runErr.Error()
	}

	if b := run.Backup; b != nil {
		msg.SnapshotID = b.SnapshotID
		msg.FilesNew = b.FilesNew
		msg.FilesChanged = b.FilesChanged
		msg.FilesUnmodified = b.FilesUnmodified
		msg.DataAdded = b.DataAdded
		msg.TotalFiles = b.TotalFilesProcessed
		msg.TotalBytes = b.TotalBytesProcessed

		// The summary line can be missing, e.g. when restic runs without --json support.
		if msg.SnapshotID == "" {
			snapshots, err := s.resticSvc.Snapshots(ctx, s.resticConfig())
			if err == nil && len(snapshots) > 0 {
				msg.SnapshotID = snapshots[len(snapshots)-1].ID
			}
		}
	}

	if f := run.Forget; f != nil {
		msg.SnapshotsKept = f.SnapshotsKept
		msg.SnapshotsRemoved = f.SnapshotsRemoved
	}

	result, err := s.telegramSvc.SendNotification(ctx, *x.cfg.Telegram, msg)
	if err != nil {
		x.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		x.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
		return
	}

	x.logger.Info().Msg("Telegram notification sent")
}
