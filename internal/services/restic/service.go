package restic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fgeck/gorestic-backup/internal/executor"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for restic operations.
type Service interface {
	Init(ctx context.Context, cfg models.ResticConfig) error
	Unlock(ctx context.Context, cfg models.ResticConfig) error
	Snapshots(ctx context.Context, cfg models.ResticConfig) ([]models.Snapshot, error)
	Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings) (*models.BackupResult, error)
	Forget(ctx context.Context, cfg models.ResticConfig, policy models.RetentionPolicy) (*models.ForgetResult, error)
	Prune(ctx context.Context, cfg models.ResticConfig, settings models.PruneSettings) (*models.PruneResult, error)
}

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// Output fragments restic prints when init runs against an existing repository.
var alreadyInitialized = []string{
	"repository master key and config already initialized",
	"config file already exists",
}

// Impl implements the Service interface.
type Impl struct {
	executor CommandExecutor
	logger   zerolog.Logger
}

// New creates a new restic service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: &executor.Default{},
		logger:   logger,
	}
}

// NewWithExecutor creates a new restic service with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

func (s *Impl) buildEnv(cfg models.ResticConfig) []string {
	env := []string{
		fmt.Sprintf("RESTIC_REPOSITORY=%s", cfg.Repository),
	}

	if cfg.Password != "" {
		env = append(env, fmt.Sprintf("RESTIC_PASSWORD=%s", cfg.Password))
	}

	return env
}

// Init initializes the repository. An already initialized repository is not an error.
func (s *Impl) Init(ctx context.Context, cfg models.ResticConfig) error {
	s.logger.Info().Str("repository", cfg.Repository).Msg("initializing repository")

	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), "restic", "init")
	if err == nil {
		s.logger.Info().Msg("repository initialized successfully")
		return nil
	}

	for _, marker := range alreadyInitialized {
		if strings.Contains(string(output), marker) {
			s.logger.Info().Msg("repository already initialized")
			return nil
		}
	}

	return fmt.Errorf("failed to initialize repository: %w, output: %s", err, string(output))
}

// Unlock removes stale locks from the repository.
func (s *Impl) Unlock(ctx context.Context, cfg models.ResticConfig) error {
	s.logger.Info().Msg("unlocking repository")

	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), "restic", "unlock")
	if err != nil {
		return fmt.Errorf("failed to unlock repository: %w, output: %s", err, string(output))
	}
	return nil
}

// snapshotJSON is the JSON structure returned by restic snapshots --json.
type snapshotJSON struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname"`
	Tags     []string  `json:"tags"`
	Paths    []string  `json:"paths"`
}

// Snapshots returns a list of snapshots in the repository.
func (s *Impl) Snapshots(ctx context.Context, cfg models.ResticConfig) ([]models.Snapshot, error) {
	s.logger.Debug().Msg("listing snapshots")

	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), "restic", "snapshots", "--json")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w, output: %s", err, string(output))
	}

	var snapshots []snapshotJSON
	if err := json.Unmarshal(output, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to parse snapshots: %w", err)
	}

	result := make([]models.Snapshot, len(snapshots))
	for i, snap := range snapshots {
		result[i] = models.Snapshot{
			ID:       snap.ID,
			Time:     snap.Time,
			Hostname: snap.Hostname,
			Tags:     snap.Tags,
			Paths:    snap.Paths,
		}
	}

	s.logger.Debug().Int("count", len(result)).Msg("snapshots listed")
	return result, nil
}

// backupSummary is the summary part of restic backup --json output.
type backupSummary struct {
	MessageType         string  `json:"message_type"`
	FilesNew            int     `json:"files_new"`
	FilesChanged        int     `json:"files_changed"`
	FilesUnmodified     int     `json:"files_unmodified"`
	DataAdded           int64   `json:"data_added"`
	TotalFilesProcessed int     `json:"total_files_processed"`
	TotalBytesProcessed int64   `json:"total_bytes_processed"`
	TotalDuration       float64 `json:"total_duration"`
	SnapshotID          string  `json:"snapshot_id"`
}

// BackupArgs builds the restic backup argument list for settings.
func BackupArgs(settings models.BackupSettings) []string {
	args := []string{"backup", "--json", "--host", settings.Host}

	if settings.ExcludeCaches {
		args = append(args, "--exclude-caches")
	}
	if settings.IgnoreInode {
		args = append(args, "--ignore-inode")
	}
	if settings.CacheDir != "" {
		args = append(args, "--cache-dir", settings.CacheDir)
	}
	if settings.NoCache {
		args = append(args, "--no-cache")
	}
	for _, tag := range settings.Tags {
		args = append(args, "--tag", tag)
	}
	for _, f := range settings.IncludeFrom {
		args = append(args, "--files-from", f)
	}
	for _, p := range settings.Excludes {
		args = append(args, "--exclude", p)
	}

	// restic rejects a path argument combined with --files-from
	if len(settings.IncludeFrom) == 0 {
		args = append(args, settings.Root)
	}

	return args
}

// Backup performs a backup operation.
func (s *Impl) Backup(ctx context.Context, cfg models.ResticConfig, settings models.BackupSettings) (*models.BackupResult, error) {
	s.logger.Info().
		Str("root", settings.Root).
		Strs("include_from", settings.IncludeFrom).
		Bool("low_priority", settings.LowPriority).
		Msg("starting backup")

	start := time.Now()
	name, args := executor.LowPriority(settings.LowPriority, "restic", BackupArgs(settings)...)

	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), name, args...)
	if err != nil {
		return &models.BackupResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("backup failed: %w, output: %s", err, string(output)),
		}, nil
	}

	// Parse the JSON output to find the summary line
	var summary backupSummary
	lines := bytes.Split(output, []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		var msg struct {
			MessageType string `json:"message_type"`
		}
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.MessageType == "summary" {
			if err := json.Unmarshal(line, &summary); err != nil {
				s.logger.Warn().Err(err).Msg("failed to parse backup summary")
			}
			break
		}
	}

	result := &models.BackupResult{
		SnapshotID:          summary.SnapshotID,
		FilesNew:            summary.FilesNew,
		FilesChanged:        summary.FilesChanged,
		FilesUnmodified:     summary.FilesUnmodified,
		DataAdded:           summary.DataAdded,
		TotalFilesProcessed: summary.TotalFilesProcessed,
		TotalBytesProcessed: summary.TotalBytesProcessed,
		Duration:            time.Since(start),
	}

	s.logger.Info().
		Str("snapshot_id", result.SnapshotID).
		Int("files_new", result.FilesNew).
		Int("files_changed", result.FilesChanged).
		Str("data_added", humanize.IBytes(uint64(max(result.DataAdded, 0)))).
		Dur("duration", result.Duration).
		Msg("backup completed")

	return result, nil
}

// forgetGroup is the JSON structure returned by restic forget --json.
type forgetGroup struct {
	Keep   []snapshotJSON `json:"keep"`
	Remove []snapshotJSON `json:"remove"`
}

// Forget removes old snapshots according to the retention policy.
// The caller is expected to skip Forget for an empty policy.
func (s *Impl) Forget(ctx context.Context, cfg models.ResticConfig, policy models.RetentionPolicy) (*models.ForgetResult, error) {
	if policy.Empty() {
		return nil, fmt.Errorf("%w: refusing to forget with an empty retention policy", models.ErrValidation)
	}

	keepArgs := policy.ForgetArgs()
	s.logger.Info().
		Strs("policy", keepArgs).
		Str("source", string(policy.Source)).
		Msg("applying retention policy")

	start := time.Now()
	args := append([]string{"forget", "--json"}, keepArgs...)

	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), "restic", args...)
	if err != nil {
		return &models.ForgetResult{
			Duration: time.Since(start),
			Error:    fmt.Errorf("forget failed: %w, output: %s", err, string(output)),
		}, nil
	}

	// Parse output to count kept/removed snapshots
	var groups []forgetGroup
	if err := json.Unmarshal(output, &groups); err != nil {
		// If the output is empty or not valid JSON, that's okay
		s.logger.Debug().Err(err).Msg("could not parse forget output")
	}

	result := &models.ForgetResult{
		Duration: time.Since(start),
	}

	for _, group := range groups {
		result.SnapshotsKept += len(group.Keep)
		result.SnapshotsRemoved += len(group.Remove)
	}

	s.logger.Info().
		Int("kept", result.SnapshotsKept).
		Int("removed", result.SnapshotsRemoved).
		Dur("duration", result.Duration).
		Msg("retention policy applied")

	return result, nil
}

// Prune removes unreferenced data from the repository. A positive
// settings.Timeout bounds the call; exceeding it fails the prune.
func (s *Impl) Prune(ctx context.Context, cfg models.ResticConfig, settings models.PruneSettings) (*models.PruneResult, error) {
	args := []string{"prune"}
	for _, opt := range settings.Options {
		args = append(args, "-o", opt)
	}

	if settings.Timeout > 0 {
		s.logger.Info().Dur("timeout", settings.Timeout).Msg("pruning repository")
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	} else {
		s.logger.Info().Msg("pruning repository")
	}

	start := time.Now()
	output, err := s.executor.ExecuteWithEnv(ctx, s.buildEnv(cfg), "restic", args...)
	result := &models.PruneResult{Duration: time.Since(start)}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.Error = fmt.Errorf("prune timed out after %s", settings.Timeout)
		} else {
			result.Error = fmt.Errorf("prune failed: %w, output: %s", err, string(output))
		}
		s.logger.Warn().Err(result.Error).Msg("prune failed")
		return result, nil
	}

	s.logger.Info().Dur("duration", result.Duration).Msg("prune finished")
	return result, nil
}
