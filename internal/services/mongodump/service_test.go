package mongodump

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fgeck/gorestic-backup/internal/models"
	"github.com/fgeck/gorestic-backup/internal/services/dump/dumptest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	listFunc func(ctx context.Context, conn models.ConnectionConfig) ([]string, error)
}

func (m *mockLister) ListDatabaseNames(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, conn)
	}
	return nil, nil
}

func listing(names ...string) *mockLister {
	return &mockLister{
		listFunc: func(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
			return names, nil
		},
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testJob() models.SourceJob {
	return models.SourceJob{
		Type:   models.SourceMongo,
		Subdir: "mongodump",
		Conn: models.ConnectionConfig{
			Host:        "mongo.local",
			Port:        27017,
			Username:    "admin",
			Password:    "secret",
			DumpVersion: 3,
		},
	}
}

func TestType(t *testing.T) {
	assert.Equal(t, models.SourceMongo, New(testLogger()).Type())
}

func TestBinary(t *testing.T) {
	name, err := Binary(3)
	require.NoError(t, err)
	assert.Equal(t, "mongodump", name)

	name, err = Binary(4)
	require.NoError(t, err)
	assert.Equal(t, "mongodump_rc", name)

	_, err = Binary(5)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDump_Success(t *testing.T) {
	dir := t.TempDir()
	exec := &dumptest.Executor{
		ExecuteFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			db := args[len(args)-3]
			require.NoError(t, os.MkdirAll(filepath.Join(dir, db), 0o750))
			return nil, os.WriteFile(filepath.Join(dir, db, "users.bson"), []byte("0123456789"), 0o600)
		},
	}

	svc := NewWithClients(testLogger(), exec, listing("admin", "app", "local"))
	job := testJob()
	job.Exclude = []string{"admin$"}
	result, err := svc.Dump(context.Background(), dir, job)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, []string{"app"}, result.Objects)
	assert.Equal(t, []string{"admin"}, result.Skipped)
	assert.Equal(t, int64(10), result.SizeBytes)

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mongodump", calls[0].Name)
	assert.Equal(t, []string{
		"--host", "mongo.local", "--port", "27017",
		"--username", "admin", "--password", "secret",
		"--authenticationDatabase", "admin",
		"--forceTableScan", "--db", "app", "-o", dir,
	}, calls[0].Args)
}

func TestDump_Version4UsesReleaseCandidateBinary(t *testing.T) {
	exec := &dumptest.Executor{}
	job := testJob()
	job.Conn.DumpVersion = 4

	svc := NewWithClients(testLogger(), exec, listing("app"))
	result, err := svc.Dump(context.Background(), t.TempDir(), job)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "mongodump_rc", exec.Calls()[0].Name)
}

func TestDump_InvalidVersion(t *testing.T) {
	job := testJob()
	job.Conn.DumpVersion = 2

	svc := NewWithClients(testLogger(), &dumptest.Executor{}, listing("app"))
	_, err := svc.Dump(context.Background(), t.TempDir(), job)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDump_ListError(t *testing.T) {
	lister := &mockLister{
		listFunc: func(ctx context.Context, conn models.ConnectionConfig) ([]string, error) {
			return nil, errors.New("server selection timeout")
		},
	}
	exec := &dumptest.Executor{}

	svc := NewWithClients(testLogger(), exec, lister)
	result, err := svc.Dump(context.Background(), t.TempDir(), testJob())

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Empty(t, exec.Calls())
}

func TestDump_EmptyServerFails(t *testing.T) {
	svc := NewWithClients(testLogger(), &dumptest.Executor{}, listing())
	result, err := svc.Dump(context.Background(), t.TempDir(), testJob())

	require.NoError(t, err)
	assert.Error(t, result.Error)
}

func TestDump_CommandError(t *testing.T) {
	exec := &dumptest.Executor{
		ExecuteFunc: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return []byte("Failed: error connecting to db server"), errors.New("exit status 1")
		},
	}

	svc := NewWithClients(testLogger(), exec, listing("app", "crm"))
	result, err := svc.Dump(context.Background(), t.TempDir(), testJob())

	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "database app")
	assert.Len(t, exec.Calls(), 1)
}

func TestDump_SkipsSystemDatabasesAndAuthenticatesAgainstAuthDB(t *testing.T) {
	exec := &dumptest.Executor{}
	svc := NewWithClients(testLogger(), exec, listing("admin", "app", "config", "local"))
	result, err := svc.Dump(context.Background(), t.TempDir(), testJob())

	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, []string{"admin", "app"}, result.Objects)
	assert.Empty(t, result.Skipped)

	calls := exec.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Contains(t, c.Args, "--authenticationDatabase")
		assert.Equal(t, "admin", c.Args[indexOf(c.Args, "--authenticationDatabase")+1])
	}
	assert.Equal(t, "app", calls[1].Args[indexOf(calls[1].Args, "--db")+1])
}

func TestDump_CustomAuthDB(t *testing.T) {
	exec := &dumptest.Executor{}
	job := testJob()
	job.Conn.AuthDB = "backup"

	svc := NewWithClients(testLogger(), exec, listing("app"))
	result, err := svc.Dump(context.Background(), t.TempDir(), job)

	require.NoError(t, err)
	require.NoError(t, result.Error)
	args := exec.Calls()[0].Args
	assert.Equal(t, "backup", args[indexOf(args, "--authenticationDatabase")+1])
}

func TestAuthDB(t *testing.T) {
	assert.Equal(t, "admin", authDB(models.ConnectionConfig{}))
	assert.Equal(t, "backup", authDB(models.ConnectionConfig{AuthDB: "backup"}))
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}
