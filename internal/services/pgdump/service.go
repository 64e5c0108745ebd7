// Package pgdump provides PostgreSQL dump operations.
package pgdump

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/rs/zerolog"
)

// PostgreSQL dump format constants.
const (
	FormatPlain  = "plain"
	FormatCustom = "custom"
	FormatTar    = "tar"
)

const listQuery = "SELECT datname FROM pg_database WHERE datallowconn AND NOT datistemplate ORDER BY datname"

// Impl implements dump.Adapter for PostgreSQL.
type Impl struct {
	executor dump.CommandExecutor
	logger   zerolog.Logger
}

// New creates a new PostgreSQL dump adapter.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: dump.DefaultExecutor(),
		logger:   logger,
	}
}

// NewWithExecutor creates a new PostgreSQL dump adapter with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor dump.CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Type returns the source type handled by this adapter.
func (s *Impl) Type() models.SourceType {
	return models.SourcePostgres
}

func connArgs(conn models.ConnectionConfig) []string {
	return []string{
		"--host", conn.Host,
		"--port", strconv.Itoa(conn.Port),
		"--username", conn.Username,
		"--no-password",
	}
}

func buildEnv(conn models.ConnectionConfig) []string {
	env := []string{}
	if conn.Password != "" {
		env = append(env, fmt.Sprintf("PGPASSWORD=%s", conn.Password))
	}
	return env
}

// ListDatabases returns the databases that accept connections, templates excluded.
func (s *Impl) ListDatabases(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
	var stdout bytes.Buffer
	args := append(connArgs(conn), "--dbname", "postgres", "-At", "-c", listQuery)

	stderr, err := s.executor.StreamWithEnv(ctx, buildEnv(conn), &stdout, "psql", args...)
	if err != nil {
		return nil, fmt.Errorf("listing of databases failed: %w, stderr: %s", err, string(stderr))
	}

	var names []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// OutputFilename returns the dump file name of database for format.
func OutputFilename(database, format string) string {
	switch format {
	case FormatCustom:
		return fmt.Sprintf("PGSQL_%s.dump", database)
	case FormatTar:
		return fmt.Sprintf("PGSQL_%s.tar", database)
	default:
		return fmt.Sprintf("PGSQL_%s.sql.gz", database)
	}
}

// Dump runs pg_dump for every selected database.
func (s *Impl) Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error) {
	conn := job.Conn
	s.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Str("format", conn.Format).
		Msg("starting PostgreSQL dump")

	start := time.Now()
	result := &models.DumpResult{Type: job.Type}

	names, err := s.ListDatabases(ctx, conn)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}

	selected, skipped, err := dump.Select(s.logger, job, names)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Skipped = skipped

	env := buildEnv(conn)
	for _, db := range selected {
		outputPath := filepath.Join(targetDir, OutputFilename(db, conn.Format))
		args := connArgs(conn)

		// Add format flag
		switch conn.Format {
		case FormatCustom:
			args = append(args, "-Fc")
		case FormatTar:
			args = append(args, "-Ft")
		default:
			args = append(args, "-Fp")
		}
		args = append(args, db)

		var size int64
		if conn.Format == FormatCustom || conn.Format == FormatTar {
			size, err = dump.WriteFile(ctx, s.executor, job.LowPriority, env, outputPath, "pg_dump", args...)
		} else {
			size, err = dump.WriteGzip(ctx, s.executor, job.LowPriority, env, outputPath, "pg_dump", args...)
		}
		if err != nil {
			result.Error = fmt.Errorf("database %s: %w", db, err)
			break
		}

		s.logger.Info().
			Str("database", db).
			Str("output", outputPath).
			Int64("size_bytes", size).
			Msg("PostgreSQL database dumped")

		result.SizeBytes += size
		result.Objects = append(result.Objects, db)
	}

	result.Duration = time.Since(start)
	return result, nil
}
