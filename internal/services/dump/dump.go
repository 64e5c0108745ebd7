// Package dump defines the source dump adapter contract and the helpers shared by the adapters.
package dump

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fgeck/gorestic-backup/internal/executor"
	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// Adapter dumps every selected object of one source type into a directory.
type Adapter interface {
	Type() models.SourceType
	Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error)
}

// CommandExecutor allows mocking the dump tools in tests.
type CommandExecutor interface {
	ExecuteWithEnv(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
	StreamWithEnv(ctx context.Context, env []string, w io.Writer, name string, args ...string) ([]byte, error)
}

// DefaultExecutor returns the os/exec backed executor.
func DefaultExecutor() CommandExecutor {
	return &executor.Default{}
}

// Run executes a dump tool, wrapping it in nice/ionice when lowPriority is set.
func Run(ctx context.Context, exec CommandExecutor, lowPriority bool, env []string, name string, args ...string) error {
	name, args = executor.LowPriority(lowPriority, name, args...)
	output, err := exec.ExecuteWithEnv(ctx, env, name, args...)
	if err != nil {
		return fmt.Errorf("%s failed: %w, output: %s", name, err, string(output))
	}
	return nil
}

// WriteGzip streams the stdout of a dump tool through gzip into path and
// returns the compressed size. A partial file is removed on failure.
func WriteGzip(ctx context.Context, exec CommandExecutor, lowPriority bool, env []string, path, name string, args ...string) (int64, error) {
	return write(ctx, exec, lowPriority, env, path, true, name, args...)
}

// WriteFile streams the stdout of a dump tool into path unchanged.
func WriteFile(ctx context.Context, exec CommandExecutor, lowPriority bool, env []string, path, name string, args ...string) (int64, error) {
	return write(ctx, exec, lowPriority, env, path, false, name, args...)
}

func write(ctx context.Context, exec CommandExecutor, lowPriority bool, env []string, path string, compress bool, name string, args ...string) (int64, error) {
	out, err := os.Create(path) //nolint:gosec // path is built from the backup root
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}

	var w io.Writer = out
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(out)
		w = zw
	}

	name, args = executor.LowPriority(lowPriority, name, args...)
	stderr, runErr := exec.StreamWithEnv(ctx, env, w, name, args...)

	if zw != nil {
		if err := zw.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output file: %w", err)
	}

	if runErr != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("%s failed: %w, stderr: %s", name, runErr, string(stderr))
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, nil
	}
	return info.Size(), nil
}

// Select applies the job's filter to the enumerated object names.
// An empty enumeration is an error; a filter that deselects every object is only a warning.
func Select(logger zerolog.Logger, job models.SourceJob, names []string) (selected, skipped []string, err error) {
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%s: no objects found at the source", job.Type)
	}

	filter, err := NewFilter(job.Include, job.Exclude)
	if err != nil {
		return nil, nil, err
	}

	selected, skipped = filter.Apply(names)
	for _, name := range skipped {
		logger.Debug().Str("source", string(job.Type)).Str("object", name).Msg("skipped by filter")
	}
	if len(selected) == 0 {
		logger.Warn().
			Str("source", string(job.Type)).
			Int("found", len(names)).
			Msg("filter deselected every object, nothing to dump")
	}

	return selected, skipped, nil
}

// DirSize returns the total size of the regular files below dir.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil //nolint:nilerr // unreadable entries do not count
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
