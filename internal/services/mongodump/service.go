// Package mongodump dumps MongoDB databases with mongodump.
package mongodump

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// systemDatabases are skipped like a whole-server mongodump skips them.
var systemDatabases = map[string]bool{
	"local":  true,
	"config": true,
}

// Lister enumerates the databases of a MongoDB server.
type Lister interface {
	ListDatabaseNames(ctx context.Context, conn models.ConnectionConfig) ([]string, error)
}

// DriverLister lists databases through the official MongoDB driver.
type DriverLister struct {
	Timeout time.Duration
}

// ListDatabaseNames connects to the server and returns its database names.
func (l *DriverLister) ListDatabaseNames(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
	opts := options.Client().
		SetHosts([]string{net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))}).
		SetDirect(true).
		SetServerSelectionTimeout(l.Timeout)
	if conn.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   conn.Username,
			Password:   conn.Password,
			AuthSource: authDB(conn),
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	names, err := client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return names, nil
}

func authDB(conn models.ConnectionConfig) string {
	if conn.AuthDB == "" {
		return "admin"
	}
	return conn.AuthDB
}

// Binary returns the mongodump executable for a dump_version.
func Binary(version int) (string, error) {
	switch version {
	case 3:
		return "mongodump", nil
	case 4:
		return "mongodump_rc", nil
	default:
		return "", fmt.Errorf("%w: unsupported mongodump dump_version %d", models.ErrValidation, version)
	}
}

// Impl implements dump.Adapter for MongoDB.
type Impl struct {
	executor dump.CommandExecutor
	lister   Lister
	logger   zerolog.Logger
}

// New creates a new MongoDB dump adapter.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		executor: dump.DefaultExecutor(),
		lister:   &DriverLister{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// NewWithClients creates an adapter with a custom executor and lister (for testing).
func NewWithClients(logger zerolog.Logger, executor dump.CommandExecutor, lister Lister) *Impl {
	return &Impl{
		executor: executor,
		lister:   lister,
		logger:   logger,
	}
}

// Type returns the source type handled by this adapter.
func (s *Impl) Type() models.SourceType {
	return models.SourceMongo
}

// Dump runs mongodump once per selected database into targetDir.
func (s *Impl) Dump(ctx context.Context, targetDir string, job models.SourceJob) (*models.DumpResult, error) {
	conn := job.Conn
	start := time.Now()
	result := &models.DumpResult{Type: job.Type}

	binary, err := Binary(conn.DumpVersion)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("host", conn.Host).
		Int("port", conn.Port).
		Str("binary", binary).
		Msg("listing MongoDB databases")

	names, err := s.lister.ListDatabaseNames(ctx, conn)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}

	userDBs := make([]string, 0, len(names))
	for _, name := range names {
		if !systemDatabases[name] {
			userDBs = append(userDBs, name)
		}
	}

	selected, skipped, err := dump.Select(s.logger, job, userDBs)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Skipped = skipped

	for _, db := range selected {
		s.logger.Info().Str("database", db).Msg("dumping MongoDB database")

		args := []string{
			"--host", conn.Host,
			"--port", strconv.Itoa(conn.Port),
			"--username", conn.Username,
			"--password", conn.Password,
			"--authenticationDatabase", authDB(conn),
			"--forceTableScan",
			"--db", db,
			"-o", targetDir,
		}
		if err := dump.Run(ctx, s.executor, job.LowPriority, nil, binary, args...); err != nil {
			result.Error = fmt.Errorf("database %s: %w", db, err)
			break
		}
		result.Objects = append(result.Objects, db)
	}

	result.SizeBytes = dump.DirSize(targetDir)
	result.Duration = time.Since(start)
	return result, nil
}
