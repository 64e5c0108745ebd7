// Package influxdump backs up InfluxDB with influxd backup -portable.
package influxdump

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/rs/zerolog"
)

// AllDatabases names the single logical object dumped when no database is configured.
const AllDatabases = "*"

// Impl implements dump.Adapter for InfluxDB.
type Impl struct {
	executor dump.CommandExecutor
	logger   zerolog.Logger
}

// New creates a new InfluxDB dump adapter.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: dump.DefaultExecutor(),
		logger:   logger,
	}
}

// NewWithExecutor creates an adapter with a custom executor (for testing).
func NewWithExecutor(logger zerolog.Logger, executor dump.CommandExecutor) *Impl {
	return &Impl{
		executor: executor,
		logger:   logger,
	}
}

// Type returns the source type handled by this adapter.
func (s *Impl) Type() models.SourceType {
	return models.SourceInflux
}

// Dump runs a single portable backup of the configured database, or of all databases.
func (s *Impl) Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error) {
	if len(job.Include) > 0 || len(job.Exclude) > 0 {
		return nil, fmt.Errorf("%w: influxdump does not support include/exclude patterns", models.ErrValidation)
	}

	conn := job.Conn
	start := time.Now()
	result := &models.DumpResult{Type: job.Type}

	object := conn.Database
	if object == "" {
		object = AllDatabases
	}

	s.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Str("database", object).
		Msg("dumping InfluxDB")

	args := []string{"backup", "-portable", "-host", net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))}
	if conn.Database != "" {
		args = append(args, "-database", conn.Database)
	}
	args = append(args, targetDir)

	if err := dump.Run(ctx, s.executor, job.LowPriority, nil, "influxd", args...); err != nil {
		result.Error = err
	} else {
		result.Objects = []string{object}
	}

	result.SizeBytes = dump.DirSize(targetDir)
	result.Duration = time.Since(start)
	return result, nil
}
