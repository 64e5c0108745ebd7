// Package mysqldump dumps every selected MySQL database with mysqldump.
package mysqldump

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// Schemas that are never dumped.
var systemDatabases = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
}

// OpenFunc opens a database handle for a DSN.
type OpenFunc func(dsn string) (*sql.DB, error)

func openMySQL(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Impl implements dump.Adapter for MySQL.
type Impl struct {
	executor dump.CommandExecutor
	open     OpenFunc
	logger   zerolog.Logger
}

// New creates a new MySQL dump adapter.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: dump.DefaultExecutor(),
		open:     openMySQL,
		logger:   logger,
	}
}

// NewWithClients creates an adapter with a custom executor and database opener (for testing).
func NewWithClients(logger zerolog.Logger, executor dump.CommandExecutor, open OpenFunc) *Impl {
	return &Impl{
		executor: executor,
		open:     open,
		logger:   logger,
	}
}

// Type returns the source type handled by this adapter.
func (s *Impl) Type() models.SourceType {
	return models.SourceMySQL
}

// DSN builds the driver connection string for conn.
func DSN(conn models.ConnectionConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = conn.Username
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	cfg.Timeout = 30 * time.Second
	return cfg.FormatDSN()
}

// ListDatabases returns the user databases visible on db.
func ListDatabases(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		if systemDatabases[name] {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Impl) listDatabases(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
	db, err := s.open(DSN(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	return ListDatabases(ctx, db)
}

// Dump writes a schema file and a data file per selected database into targetDir.
func (s *Impl) Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error) {
	start := time.Now()
	result := &models.DumpResult{Type: job.Type}
	conn := job.Conn

	s.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Msg("listing MySQL databases")

	names, err := s.listDatabases(ctx, conn)
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

	env := []string{fmt.Sprintf("MYSQL_PWD=%s", conn.Password)}
	base := []string{
		"--host", conn.Host,
		"--port", strconv.Itoa(conn.Port),
		"--user", conn.Username,
		"--single-transaction",
	}

	for _, db := range selected {
		s.logger.Info().Str("database", db).Msg("dumping MySQL database")

		schemaArgs := append(append([]string{}, base...),
			"--no-data", "--add-drop-database", "--no-create-info", "--databases", db)
		size, err := dump.WriteGzip(ctx, s.executor, job.LowPriority, env,
			filepath.Join(targetDir, fmt.Sprintf("MYSQL_%s_DROP_CREATE.sql.gz", db)), "mysqldump", schemaArgs...)
		if err != nil {
			result.Error = fmt.Errorf("database %s: %w", db, err)
			break
		}
		result.SizeBytes += size

		dataArgs := append(append([]string{}, base...), "--no-create-db", db)
		size, err = dump.WriteGzip(ctx, s.executor, job.LowPriority, env,
			filepath.Join(targetDir, fmt.Sprintf("MYSQL_%s_DATA.sql.gz", db)), "mysqldump", dataArgs...)
		if err != nil {
			result.Error = fmt.Errorf("database %s: %w", db, err)
			break
		}
		result.SizeBytes += size
		result.Objects = append(result.Objects, db)
	}

	result.Duration = time.Since(start)
	return result, nil
}
